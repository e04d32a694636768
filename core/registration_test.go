package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/iocache"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistration(network Fetcher) *Registration {
	origin, _ := url.Parse(testOrigin)
	return NewRegistration(origin, network)
}

func TestRegisterFirstWorkerActivates(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	w := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, w))

	assert.Same(t, w, reg.Active())
	assert.Nil(t, reg.Waiting())
	assert.Equal(t, schema.StateActive, w.State())
}

func TestRegisterWaitsForConsumers(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	old := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, old))

	controller, release := reg.Acquire()
	require.Same(t, old, controller)
	assert.Equal(t, 1, reg.Consumers(old))

	next := newTestWorker(t, testConfig("v4", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, next))
	assert.Same(t, old, reg.Active(), "old worker keeps control while it has consumers")
	assert.Same(t, next, reg.Waiting())
	assert.Equal(t, schema.StateWaiting, next.State())

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v3", "digital-diary-v4"}, names, "two generations coexist during the handoff")

	release()
	release() // second call is a no-op

	assert.Same(t, next, reg.Active())
	assert.Nil(t, reg.Waiting())
	assert.Equal(t, schema.StateActive, next.State())
	assert.Equal(t, schema.StateRedundant, old.State())

	names, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v4"}, names)
}

func TestRegisterSkipWaiting(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	old := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, old))
	_, release := reg.Acquire()
	defer release()

	cfg := testConfig("v4", "./a")
	cfg.SkipWaiting = true
	next := newTestWorker(t, cfg, store, network)
	require.NoError(t, reg.Register(ctx, next))

	assert.Same(t, next, reg.Active(), "skip-waiting activates despite open consumers")
	assert.Equal(t, schema.StateRedundant, old.State())
}

func TestPostMessage(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	assert.ErrorIs(t, reg.PostMessage(ctx, "reload"), ErrUnknownMessage)
	assert.NoError(t, reg.PostMessage(ctx, schema.MessageSkipWaiting), "nothing waiting is a no-op")

	old := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, old))
	_, release := reg.Acquire()
	defer release()

	next := newTestWorker(t, testConfig("v4", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, next))
	require.Same(t, next, reg.Waiting())

	require.NoError(t, reg.PostMessage(ctx, schema.MessageSkipWaiting))
	assert.Same(t, next, reg.Active())
	assert.True(t, next.ShouldSkipWaiting())
}

func TestRegisterFailedInstallKeepsActive(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A", "/b": "B"})
	reg := newTestRegistration(network)

	old := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, old))

	network.fail("/b")
	cfg := testConfig("v4", "./a", "./b")
	cfg.SkipWaiting = true
	next := newTestWorker(t, cfg, store, network)
	err := reg.Register(ctx, next)
	assert.ErrorIs(t, err, ErrInstallFailed)

	assert.Same(t, old, reg.Active())
	assert.Nil(t, reg.Waiting())
	assert.Equal(t, schema.StateActive, old.State())

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v3"}, names)
}

func TestRegisterNewerWaitingReplacesOlderWaiting(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	require.NoError(t, reg.Register(ctx, newTestWorker(t, testConfig("v3", "./a"), store, network)))
	_, release := reg.Acquire()

	v4 := newTestWorker(t, testConfig("v4", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, v4))
	v5 := newTestWorker(t, testConfig("v5", "./a"), store, network)
	require.NoError(t, reg.Register(ctx, v5))

	assert.Equal(t, schema.StateRedundant, v4.State())
	assert.Same(t, v5, reg.Waiting())

	release()
	assert.Same(t, v5, reg.Active())
	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v5"}, names)
}

func TestRegisterResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/a": "A"})

	first := newTestRegistration(network)
	require.NoError(t, first.Register(ctx, newTestWorker(t, testConfig("v3", "./a"), store, network)))

	// The process dies; a new one starts offline over the same store.
	network.setOffline(true)
	restarted := newTestRegistration(network)
	w := newTestWorker(t, testConfig("v3", "./a"), store, network)
	require.NoError(t, restarted.Register(ctx, w))
	assert.Same(t, w, restarted.Active())

	resp, handled, err := w.HandleFetch(ctx, NewRequest(http.MethodGet, abs("/a")))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "A", readBody(t, resp))
	w.Wait()
}

func TestServeHTTP(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		switch {
		case req.Method == http.MethodPost && req.URL.Path == "/api/title":
			body, _ := io.ReadAll(req.Body)
			rw.Header().Set("Content-Type", "application/json")
			_, _ = rw.Write([]byte(`{"echo":` + string(body) + `}`))
		case req.URL.Path == "/" || req.URL.Path == "/index.html":
			rw.Header().Set("Content-Type", "text/html")
			_, _ = rw.Write([]byte("<h1>diary</h1>"))
		case req.URL.Path == "/down":
			hj, ok := rw.(http.Hijacker)
			if !ok {
				rw.WriteHeader(http.StatusInternalServerError)
				return
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
		default:
			http.NotFound(rw, req)
		}
	}))
	defer origin.Close()

	originURL, err := url.Parse(origin.URL + "/")
	require.NoError(t, err)
	network := NewHTTPFetcher(0)
	store := iocache.NewMemoryStorage()
	reg := NewRegistration(originURL, network)

	w, err := NewWorker(WorkerConfig{
		Prefix:   "digital-diary",
		Version:  "v3",
		Manifest: Manifest{"./", "./index.html"},
		Origin:   originURL,
	}, store, network)
	require.NoError(t, err)
	require.NoError(t, reg.Register(ctx, w))
	installHits := hits.Load()

	front := httptest.NewServer(reg)
	defer front.Close()

	t.Run("cached GET", func(t *testing.T) {
		resp, err := http.Get(front.URL + "/index.html")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "<h1>diary</h1>", string(body))
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
		w.Wait()
		assert.Equal(t, installHits+1, hits.Load(), "one background refresh")
	})

	t.Run("POST passes through", func(t *testing.T) {
		resp, err := http.Post(front.URL+"/api/title", "application/json", strings.NewReader(`{"story":"x"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"echo":{"story":"x"}}`, string(body))

		entries, err := store.Entries(ctx, "digital-diary-v3")
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.URL, "/api/")
		}
	})

	t.Run("uncached 404 is returned", func(t *testing.T) {
		resp, err := http.Get(front.URL + "/missing.js")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("network failure on miss is a bad gateway", func(t *testing.T) {
		resp, err := http.Get(front.URL + "/down")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("state endpoint", func(t *testing.T) {
		resp, err := http.Get(front.URL + "/__worker/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		var state RegistrationState
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
		require.NotNil(t, state.Active)
		assert.Equal(t, "digital-diary-v3", state.Active.CacheName)
		assert.Equal(t, schema.StateActive, state.Active.State)
		assert.Nil(t, state.Waiting)
	})

	t.Run("message endpoint", func(t *testing.T) {
		resp, err := http.Post(front.URL+"/__worker/message", "application/json", strings.NewReader(`{"type":"skip-waiting"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp, err = http.Post(front.URL+"/__worker/message", "application/json", strings.NewReader(`{"type":"reload"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Post(front.URL+"/__worker/message", "application/json", strings.NewReader(`not json`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	w.Wait()
}

func TestServeHTTPWithoutWorker(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/a": "A"})
	reg := newTestRegistration(network)

	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", rec.Body.String())
	assert.Equal(t, 1, network.callCount("/a"))
}

func TestOriginRequest(t *testing.T) {
	origin, _ := url.Parse("http://diary.test/app/")
	reg := NewRegistration(origin, newFakeNetwork(nil))

	req := httptest.NewRequest(http.MethodGet, "/scripts/app.js?v=2", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Accept", "text/javascript")

	creq := reg.originRequest(req)
	assert.Equal(t, "http://diary.test/app/scripts/app.js?v=2", creq.URL)
	assert.Equal(t, "text/javascript", creq.Header.Get("Accept"))
	assert.Empty(t, creq.Header.Get("Connection"))
	assert.Nil(t, creq.Body)

	escaped := reg.originRequest(httptest.NewRequest(http.MethodGet, "/stories/a%2Fb.json", nil))
	assert.Equal(t, "http://diary.test/app/stories/a%2Fb.json", escaped.URL, "encoded slashes stay encoded")
}

func TestServeHTTPPartialRequests(t *testing.T) {
	ctx := context.Background()
	modified := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	origin := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		http.ServeContent(rw, req, "story.txt", modified, strings.NewReader("0123456789"))
	}))
	defer origin.Close()

	originURL, err := url.Parse(origin.URL + "/")
	require.NoError(t, err)
	network := NewHTTPFetcher(0)
	store := iocache.NewMemoryStorage()
	reg := NewRegistration(originURL, network)
	w, err := NewWorker(WorkerConfig{Prefix: "digital-diary", Version: "v3", Manifest: Manifest{"./"}, Origin: originURL}, store, network)
	require.NoError(t, err)
	require.NoError(t, reg.Register(ctx, w))

	front := httptest.NewServer(reg)
	defer front.Close()

	get := func(t *testing.T, header, value string) (int, string) {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, front.URL+"/story.txt", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set(header, value)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		w.Wait()
		return resp.StatusCode, string(body)
	}
	stored := func(t *testing.T) schema.CachedEntry {
		t.Helper()
		entry, err := store.Match(ctx, "digital-diary-v3", http.MethodGet, origin.URL+"/story.txt")
		require.NoError(t, err)
		return entry
	}

	status, body := get(t, "Range", "bytes=0-3")
	assert.Equal(t, http.StatusPartialContent, status)
	assert.Equal(t, "0123", body)
	entry := stored(t)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "0123456789", string(entry.Body))

	status, body = get(t, "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0123456789", body)

	status, body = get(t, "If-Modified-Since", modified.Add(time.Hour).Format(http.TimeFormat))
	assert.Equal(t, http.StatusOK, status, "a hit answers with the stored copy")
	assert.Equal(t, "0123456789", body)
	entry = stored(t)
	assert.Equal(t, http.StatusOK, entry.Status, "the refresh asks for the full asset")
	assert.Equal(t, "0123456789", string(entry.Body))
}

func TestReplacedWorkerWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := iocache.NewMemoryStorage()
	slow := newFakeNetwork(map[string]string{"/a": "A1", "/b": "B1"})
	reg := newTestRegistration(slow)

	old := newTestWorker(t, testConfig("v1", "./a"), store, slow)
	require.NoError(t, reg.Register(ctx, old))

	gate := make(chan struct{})
	slow.mu.Lock()
	slow.gate = gate
	slow.mu.Unlock()

	// A hit refresh and a miss fill both wait on the network.
	resp, handled, err := old.HandleFetch(ctx, NewRequest(http.MethodGet, abs("/a")))
	require.NoError(t, err)
	require.True(t, handled)
	resp.Discard()
	missDone := make(chan struct{})
	go func() {
		defer close(missDone)
		if resp, handled, err := old.HandleFetch(ctx, NewRequest(http.MethodGet, abs("/b"))); err == nil && handled {
			resp.Discard()
		}
	}()

	cfg := testConfig("v2", "./a")
	cfg.SkipWaiting = true
	next := newTestWorker(t, cfg, store, newFakeNetwork(map[string]string{"/a": "A2"}))
	require.NoError(t, reg.Register(ctx, next))
	require.Equal(t, schema.StateRedundant, old.State())

	close(gate)
	<-missDone
	old.Wait()

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v2"}, names)
	_, err = store.Match(ctx, "digital-diary-v2", http.MethodGet, abs("/b"))
	assert.ErrorIs(t, err, contract.ErrCacheMiss)
}
