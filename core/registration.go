package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
)

// Registration hosts workers for one origin. It decides which worker
// controls incoming requests and when a waiting worker takes over.
type Registration struct {
	origin  *url.URL
	network Fetcher
	mux     *http.ServeMux

	mu        sync.Mutex
	active    *Worker
	waiting   *Worker
	consumers map[*Worker]int
}

var _ Claimer = &Registration{} // Compile-time check

// NewRegistration returns a registration that forwards requests to origin.
func NewRegistration(origin *url.URL, network Fetcher) *Registration {
	r := &Registration{
		origin:    origin,
		network:   network,
		consumers: make(map[*Worker]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /__worker/state", r.handleState)
	mux.HandleFunc("POST /__worker/message", r.handleMessage)
	mux.HandleFunc("/", r.handleFetch)
	r.mux = mux
	return r
}

// Active returns the controlling worker, or nil.
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed worker waiting to activate, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Register brings w up next to the current worker. A worker whose
// generation is already complete in the store is resumed; otherwise it is
// installed. An install failure leaves the active worker untouched.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Resume(ctx); err != nil {
		if !errors.Is(err, ErrNotInstalled) {
			return err
		}
		if err := w.Install(ctx); err != nil {
			return err
		}
	} else {
		contract.LogInfo("Resumed %s from the cache store", w.CacheName())
	}

	r.mu.Lock()
	if prev := r.waiting; prev != nil && prev != w {
		prev.retire()
	}
	r.waiting = w
	r.mu.Unlock()

	return r.promote(ctx)
}

// promote activates the waiting worker when nothing holds it back: there is
// no active worker, it asked to skip waiting, or the active worker has no
// consumers left.
func (r *Registration) promote(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil {
		r.mu.Unlock()
		return nil
	}
	if r.active != nil && r.consumers[r.active] > 0 && !w.ShouldSkipWaiting() {
		r.mu.Unlock()
		return nil
	}
	r.waiting = nil
	r.mu.Unlock()

	return w.Activate(ctx, r)
}

// Claim makes w the controller. Requests already running on the previous
// worker finish there; every new request goes to w.
func (r *Registration) Claim(w *Worker) {
	r.mu.Lock()
	prev := r.active
	r.active = w
	r.mu.Unlock()

	if prev != nil && prev != w {
		prev.retire()
	}
}

// Acquire attaches a consumer to the controlling worker. The returned
// release must be called once the consumer is done. Releasing the last
// consumer of a worker lets a waiting worker take over.
func (r *Registration) Acquire() (*Worker, func()) {
	r.mu.Lock()
	w := r.active
	if w != nil {
		r.consumers[w]++
	}
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			if w == nil {
				return
			}
			r.mu.Lock()
			r.consumers[w]--
			idle := r.consumers[w] <= 0
			if idle {
				delete(r.consumers, w)
			}
			handoff := idle && r.waiting != nil
			r.mu.Unlock()

			if handoff {
				if err := r.promote(context.Background()); err != nil {
					contract.LogWarn("Failed to hand off to waiting worker", err)
				}
			}
		})
	}
	return w, release
}

// Close closes the active and waiting workers, waiting for their
// background work. Call it once the server stopped handing out requests.
func (r *Registration) Close() {
	r.mu.Lock()
	workers := []*Worker{r.active, r.waiting}
	r.mu.Unlock()
	for _, w := range workers {
		if w != nil {
			w.Close()
		}
	}
}

// Consumers returns the number of attached consumers of w.
func (r *Registration) Consumers(w *Worker) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumers[w]
}

// PostMessage handles a control message. Only skip-waiting is accepted;
// with no waiting worker it does nothing.
func (r *Registration) PostMessage(ctx context.Context, msg schema.ControlMessage) error {
	if msg != schema.MessageSkipWaiting {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg)
	}
	w := r.Waiting()
	if w == nil {
		return nil
	}
	w.SkipWaiting()
	return r.promote(ctx)
}

// ServeHTTP implements http.Handler.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(rw, req)
}

// RegistrationState is the body of the state endpoint.
type RegistrationState struct {
	Active  *schema.WorkerStatus `json:"active,omitempty"`
	Waiting *schema.WorkerStatus `json:"waiting,omitempty"`
}

// State returns the statuses of the active and waiting workers.
func (r *Registration) State() RegistrationState {
	var state RegistrationState
	if w := r.Active(); w != nil {
		s := w.Status()
		state.Active = &s
	}
	if w := r.Waiting(); w != nil {
		s := w.Status()
		state.Waiting = &s
	}
	return state
}

func (r *Registration) handleState(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, r.State())
}

func (r *Registration) handleMessage(rw http.ResponseWriter, req *http.Request) {
	var msg struct {
		Type schema.ControlMessage `json:"type"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<10)).Decode(&msg); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid message body"})
		return
	}
	if err := r.PostMessage(req.Context(), msg.Type); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownMessage) {
			status = http.StatusBadRequest
		}
		writeJSON(rw, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusAccepted, r.State())
}

// handleFetch is the fetch trigger: the controlling worker intercepts the
// request or declines it, and declined requests go to the origin as is.
func (r *Registration) handleFetch(rw http.ResponseWriter, req *http.Request) {
	creq := r.originRequest(req)

	w, release := r.Acquire()
	defer release()

	var resp *Response
	handled := false
	var err error
	if w != nil {
		resp, handled, err = w.HandleFetch(req.Context(), creq)
	}
	if !handled {
		resp, err = r.network.Fetch(req.Context(), creq)
	}
	if err != nil {
		contract.LogWarn("Fetch failed for "+creq.Key(), err)
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	writeResponse(rw, resp)
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// originRequest maps an incoming request onto the origin.
func (r *Registration) originRequest(req *http.Request) Request {
	ref := &url.URL{
		Path:     strings.TrimLeft(req.URL.Path, "/"),
		RawPath:  strings.TrimLeft(req.URL.RawPath, "/"),
		RawQuery: req.URL.RawQuery,
	}
	header := req.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	creq := Request{Method: req.Method, URL: r.origin.ResolveReference(ref).String(), Header: header}
	if req.Body != nil && req.Body != http.NoBody {
		creq.Body = req.Body
	}
	return creq
}

func writeResponse(rw http.ResponseWriter, resp *Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			rw.Header().Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		rw.Header().Del(h)
	}
	body, err := resp.Body()
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() { _ = body.Close() }()
	rw.WriteHeader(resp.Status)
	_, _ = io.Copy(rw, body)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
