package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// WorkerConfig is the build-time identity of a worker.
type WorkerConfig struct {
	Prefix      string
	Version     string
	Manifest    Manifest
	Origin      *url.URL
	Workers     int  // concurrent manifest fetches; <= 0 means unbounded
	SkipWaiting bool // request activation as soon as install completes
}

// Claimer takes control of open consumers on behalf of an activated worker.
type Claimer interface {
	Claim(w *Worker)
}

// Worker is one worker instance bound to a single cache generation.
// All of its state lives on the instance; the durable part lives in the store.
type Worker struct {
	version   string
	prefix    string
	cacheName string
	assets    []string
	workers   int
	store     contract.CacheStorage
	network   Fetcher

	mu          sync.Mutex
	state       schema.WorkerState
	skipWaiting bool

	bg     sync.WaitGroup // background refreshes and cache fills
	closed bool
}

// CacheName returns the generation name for a prefix and version.
func CacheName(prefix, version string) string {
	return prefix + "-" + version
}

// NewWorker creates a worker in the parsed state.
func NewWorker(cfg WorkerConfig, store contract.CacheStorage, network Fetcher) (*Worker, error) {
	if cfg.Prefix == "" || cfg.Version == "" {
		return nil, errors.New("worker needs a cache prefix and version")
	}
	if store == nil || network == nil {
		return nil, errors.New("worker needs a cache store and a network")
	}
	assets, err := cfg.Manifest.Resolve(cfg.Origin)
	if err != nil {
		return nil, err
	}
	return &Worker{
		version:     cfg.Version,
		prefix:      cfg.Prefix,
		cacheName:   CacheName(cfg.Prefix, cfg.Version),
		assets:      assets,
		workers:     cfg.Workers,
		store:       store,
		network:     network,
		state:       schema.StateParsed,
		skipWaiting: cfg.SkipWaiting,
	}, nil
}

// Version returns the version tag.
func (w *Worker) Version() string { return w.version }

// CacheName returns the generation this worker reads and writes.
func (w *Worker) CacheName() string { return w.cacheName }

// Assets returns the absolute manifest URLs.
func (w *Worker) Assets() []string { return append([]string(nil), w.assets...) }

// State returns the lifecycle state.
func (w *Worker) State() schema.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot for display.
func (w *Worker) Status() schema.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return schema.WorkerStatus{
		Version:     w.version,
		CacheName:   w.cacheName,
		State:       w.state,
		SkipWaiting: w.skipWaiting,
	}
}

// SkipWaiting asks for activation without waiting for old consumers to leave.
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipWaiting = true
}

// ShouldSkipWaiting reports whether SkipWaiting was requested.
func (w *Worker) ShouldSkipWaiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipWaiting
}

func (w *Worker) setState(state schema.WorkerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

// transition moves to next only when the current state is one of from.
func (w *Worker) transition(next schema.WorkerState, from ...schema.WorkerState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidState, w.cacheName, w.state, next)
}

// retire marks a worker that lost control or was replaced.
func (w *Worker) retire() {
	w.setState(schema.StateRedundant)
}

// Install fetches every manifest asset and stores them as one generation.
// Either every asset is stored or none is. Repeating a successful install
// overwrites the same entries.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(schema.StateInstalling, schema.StateParsed, schema.StateWaiting, schema.StateRedundant); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "worker.install")
	defer span.End()
	span.SetAttributes(attribute.String("cache.name", w.cacheName), attribute.Int("manifest.size", len(w.assets)))

	entries, err := w.fetchAssets(ctx)
	if err == nil {
		err = w.store.PutAll(ctx, w.cacheName, entries)
	}
	if err != nil {
		w.setState(schema.StateRedundant)
		span.RecordError(err)
		span.SetStatus(codes.Error, "install failed")
		return fmt.Errorf("%w: %s: %w", ErrInstallFailed, w.cacheName, err)
	}

	w.setState(schema.StateWaiting)
	contract.LogInfo("Installed %s with %d assets", w.cacheName, len(entries))
	return nil
}

// fetchAssets downloads the manifest concurrently. Any failure cancels the rest.
func (w *Worker) fetchAssets(ctx context.Context) ([]schema.CachedEntry, error) {
	entries := make([]schema.CachedEntry, len(w.assets))
	g, gctx := errgroup.WithContext(ctx)
	if w.workers > 0 {
		g.SetLimit(w.workers)
	}
	for i, asset := range w.assets {
		g.Go(func() error {
			req := NewRequest(http.MethodGet, asset)
			resp, err := w.network.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", asset, err)
			}
			if !resp.OK() {
				resp.Discard()
				return fmt.Errorf("fetch %s: unexpected status %d", asset, resp.Status)
			}
			entry, err := toEntry(w.cacheName, req, resp)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Resume re-derives the installed state from the store after a restart.
// It succeeds only when every manifest asset is present in this worker's generation.
func (w *Worker) Resume(ctx context.Context) error {
	w.mu.Lock()
	state := w.state
	w.mu.Unlock()
	if state != schema.StateParsed {
		return fmt.Errorf("%w: resume requires %s, worker is %s", ErrInvalidState, schema.StateParsed, state)
	}

	missing, err := w.Missing(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotInstalled, w.cacheName, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing %s", ErrNotInstalled, w.cacheName, missing[0])
	}
	return w.transition(schema.StateWaiting, schema.StateParsed)
}

// Missing lists the manifest URLs that have no entry in the worker's generation.
func (w *Worker) Missing(ctx context.Context) ([]string, error) {
	var missing []string
	for _, asset := range w.assets {
		if _, err := w.store.Match(ctx, w.cacheName, http.MethodGet, asset); err != nil {
			if !errors.Is(err, contract.ErrCacheMiss) {
				return nil, err
			}
			missing = append(missing, asset)
		}
	}
	return missing, nil
}

// Activate deletes every other generation under the prefix, then claims
// consumers and becomes active. Deletion failures are logged and skipped.
func (w *Worker) Activate(ctx context.Context, claimer Claimer) error {
	if err := w.transition(schema.StateActivating, schema.StateWaiting); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "worker.activate")
	defer span.End()
	span.SetAttributes(attribute.String("cache.name", w.cacheName))

	deleted := 0
	names, err := w.store.Keys(ctx)
	if err != nil {
		contract.LogWarn("Failed to list cache generations", err)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, w.prefix+"-") || name == w.cacheName {
			continue
		}
		if _, err := w.store.Delete(ctx, name); err != nil {
			contract.LogWarn("Failed to delete cache generation "+name, err)
			continue
		}
		deleted++
	}
	span.SetAttributes(attribute.Int("generations.deleted", deleted))

	if claimer != nil {
		claimer.Claim(w)
	}
	w.setState(schema.StateActive)
	contract.LogInfo("Activated %s (removed %d old generations)", w.cacheName, deleted)
	return nil
}

// HandleFetch intercepts a request. handled is false when the request is
// declined and should go to the network untouched.
//
// On a hit the stored copy is returned at once and refreshed in the
// background. On a miss the network response is returned and a 2xx copy
// is stored in the background. Network failures on a miss are returned.
// A partial answer is never stored; the full asset is fetched in the
// background instead.
func (w *Worker) HandleFetch(ctx context.Context, req Request) (resp *Response, handled bool, err error) {
	if !req.IsGet() || w.State() != schema.StateActive {
		return nil, false, nil
	}

	ctx, span := tracer.Start(ctx, "worker.fetch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("cache.name", w.cacheName), attribute.String("url.full", req.URL)),
	)
	defer span.End()

	entry, err := w.store.Match(ctx, w.cacheName, http.MethodGet, req.URL)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		w.refresh(ctx, req)
		return responseFromEntry(entry), true, nil
	case !errors.Is(err, contract.ErrCacheMiss):
		contract.LogWarn("Cache read failed for "+req.URL, err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	resp, err = w.network.Fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "network failure")
		return nil, true, err
	}
	if !resp.Cacheable() {
		if resp.Status == http.StatusPartialContent {
			w.refresh(ctx, req)
		}
		return resp, true, nil
	}

	caller, fill, err := Duplicate(resp)
	if err != nil {
		return nil, true, err
	}
	w.background(ctx, func(ctx context.Context) {
		w.put(ctx, req, fill)
	})
	return caller, true, nil
}

// refresh fetches the full asset behind req and overwrites the entry on a
// 2xx response. Network failures are dropped; the stored copy keeps serving.
func (w *Worker) refresh(ctx context.Context, req Request) {
	fresh := req.full()
	w.background(ctx, func(ctx context.Context) {
		resp, err := w.network.Fetch(ctx, fresh)
		if err != nil {
			return
		}
		if !resp.Cacheable() {
			resp.Discard()
			return
		}
		w.put(ctx, fresh, resp)
	})
}

// put writes resp into this worker's generation. A replaced worker writes
// nothing, and neither does one whose generation was deleted.
func (w *Worker) put(ctx context.Context, req Request, resp *Response) {
	if w.State() == schema.StateRedundant {
		resp.Discard()
		return
	}
	entry, err := toEntry(w.cacheName, req, resp)
	if err != nil {
		contract.LogWarn("Failed to read response for cache", err)
		return
	}
	err = w.store.Put(ctx, entry)
	switch {
	case errors.Is(err, contract.ErrGenerationNotFound):
		contract.LogInfo("Dropped write of %s: %s was removed", req.URL, w.cacheName)
	case err != nil:
		contract.LogWarn("Failed to cache "+req.URL, err)
	}
}

// background runs fn detached from the request's cancellation. Nothing
// starts once the worker is closed.
func (w *Worker) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.bg.Add(1)
	w.mu.Unlock()
	go func() {
		defer w.bg.Done()
		fn(ctx)
	}()
}

// Wait blocks until every background refresh and cache fill has finished.
func (w *Worker) Wait() {
	w.bg.Wait()
}

// Close stops new background work and waits for the running tasks.
// Requests handled after Close are still answered, without cache writes.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.bg.Wait()
}
