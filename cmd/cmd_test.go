package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/iocache"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	contract.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func testOrigin(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing.js" {
			http.NotFound(rw, req)
			return
		}
		_, _ = fmt.Fprintf(rw, "asset %s", req.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func workerConfig(t *testing.T, originURL, version string, manifest ...string) *contract.Config {
	origin, err := url.Parse(originURL + "/")
	require.NoError(t, err)
	return &contract.Config{
		CachePrefix:  schema.DefaultCachePrefix,
		CacheVersion: version,
		Manifest:     manifest,
		Origin:       origin,
		Workers:      2,
		SkipWaiting:  true,
	}
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "install", "activate", "cache", "mcp", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	cacheNames := map[string]bool{}
	for _, c := range cacheCmd.Commands() {
		cacheNames[c.Name()] = true
	}
	for _, want := range []string{"status", "generations", "entries", "clear", "export", "migrate"} {
		assert.True(t, cacheNames[want], "missing cache command %s", want)
	}
}

func TestNewWorkerUsesDefaultManifest(t *testing.T) {
	c := workerConfig(t, "http://localhost:8080", "v3")
	w, err := newWorker(c, iocache.NewMemoryStorage(), core.NewHTTPFetcher(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "digital-diary-v3", w.CacheName())
	assert.Len(t, w.Assets(), len(core.DefaultManifest))
	assert.True(t, w.ShouldSkipWaiting())
}

func TestRegisterWorker(t *testing.T) {
	ctx := context.Background()
	origin := testOrigin(t)
	store := iocache.NewMemoryStorage()
	network := core.NewHTTPFetcher(5 * time.Second)

	old := workerConfig(t, origin.URL, "v2", "./", "./app.js")
	_, err := registerWorker(ctx, old, store, network)
	require.NoError(t, err)

	reg, err := registerWorker(ctx, workerConfig(t, origin.URL, "v3", "./", "./app.js"), store, network)
	require.NoError(t, err)
	require.NotNil(t, reg.Active())
	assert.Equal(t, "digital-diary-v3", reg.Active().CacheName())

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v3"}, names, "activation removes the older generation")

	t.Run("failed install keeps registration", func(t *testing.T) {
		reg, err := registerWorker(ctx, workerConfig(t, origin.URL, "v4", "./", "./missing.js"), store, network)
		require.ErrorIs(t, err, core.ErrInstallFailed)
		require.NotNil(t, reg)
		assert.Nil(t, reg.Active())

		names, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"digital-diary-v3"}, names)
	})

	t.Run("invalid manifest", func(t *testing.T) {
		reg, err := registerWorker(ctx, workerConfig(t, origin.URL, "v5", "https://cdn.example.com/x.js"), store, network)
		assert.Error(t, err)
		assert.Nil(t, reg)
	})
}

func TestReloadRegistersNextGeneration(t *testing.T) {
	ctx := context.Background()
	origin := testOrigin(t)
	store := iocache.NewMemoryStorage()
	network := core.NewHTTPFetcher(5 * time.Second)

	current := workerConfig(t, origin.URL, "v2", "./", "./app.js")
	current.SkipWaiting = false
	reg, err := registerWorker(ctx, current, store, network)
	require.NoError(t, err)
	_, release := reg.Acquire()
	defer release()

	next := workerConfig(t, origin.URL, "v3", "./", "./app.js")
	next.SkipWaiting = false
	rl := &reloader{
		reg:     reg,
		store:   store,
		network: network,
		origin:  current.Origin,
		load:    func() (*contract.Config, error) { return next, nil },
	}

	require.NoError(t, rl.reload(ctx))
	assert.Equal(t, "digital-diary-v2", reg.Active().CacheName())
	require.NotNil(t, reg.Waiting())
	waiting := reg.Waiting()
	assert.Equal(t, "digital-diary-v3", waiting.CacheName())
	assert.Equal(t, schema.StateWaiting, waiting.State())

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v2", "digital-diary-v3"}, names)

	require.NoError(t, rl.reload(ctx))
	assert.Same(t, waiting, reg.Waiting(), "reloading the same version is a no-op")

	front := httptest.NewServer(reg)
	defer front.Close()
	resp, err := http.Post(front.URL+"/__worker/message", "application/json", strings.NewReader(`{"type":"skip-waiting"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Same(t, waiting, reg.Active())
	assert.Nil(t, reg.Waiting())
	names, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"digital-diary-v3"}, names)
}

func TestReloadHandsOffOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	origin := testOrigin(t)
	store := iocache.NewMemoryStorage()
	network := core.NewHTTPFetcher(5 * time.Second)

	current := workerConfig(t, origin.URL, "v2", "./")
	current.SkipWaiting = false
	reg, err := registerWorker(ctx, current, store, network)
	require.NoError(t, err)
	_, release := reg.Acquire()

	next := workerConfig(t, origin.URL, "v3", "./")
	next.SkipWaiting = false
	rl := &reloader{
		reg:     reg,
		store:   store,
		network: network,
		origin:  current.Origin,
		load:    func() (*contract.Config, error) { return next, nil },
	}
	signals := make(chan os.Signal, 1)
	go rl.run(ctx, signals)
	signals <- syscall.SIGHUP

	require.Eventually(t, func() bool { return reg.Waiting() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "digital-diary-v2", reg.Active().CacheName())

	release()
	assert.Equal(t, "digital-diary-v3", reg.Active().CacheName(), "the last consumer leaving hands off")
	assert.Nil(t, reg.Waiting())
}

func TestReloadFailures(t *testing.T) {
	ctx := context.Background()
	origin := testOrigin(t)
	store := iocache.NewMemoryStorage()
	network := core.NewHTTPFetcher(5 * time.Second)

	current := workerConfig(t, origin.URL, "v2", "./")
	reg, err := registerWorker(ctx, current, store, network)
	require.NoError(t, err)

	t.Run("config error", func(t *testing.T) {
		rl := &reloader{reg: reg, store: store, network: network, origin: current.Origin,
			load: func() (*contract.Config, error) { return nil, errors.New("bad yaml") }}
		assert.ErrorContains(t, rl.reload(ctx), "bad yaml")
	})

	t.Run("install error keeps the active worker", func(t *testing.T) {
		broken := workerConfig(t, origin.URL, "v3", "./", "./missing.js")
		rl := &reloader{reg: reg, store: store, network: network, origin: current.Origin,
			load: func() (*contract.Config, error) { return broken, nil }}
		assert.ErrorIs(t, rl.reload(ctx), core.ErrInstallFailed)
		assert.Equal(t, "digital-diary-v2", reg.Active().CacheName())
		assert.Nil(t, reg.Waiting())
	})
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newHTTPServer("127.0.0.1:0", http.NotFoundHandler())
	assert.Equal(t, readHeaderTimeout, srv.ReadHeaderTimeout)

	done := make(chan error, 1)
	go func() { done <- listenAndServe(ctx, "test", srv) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("listenAndServe did not return after cancel")
	}
}

func TestListenAndServeReportsBindError(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	srv := newHTTPServer(busy.Listener.Addr().String(), http.NotFoundHandler())
	err := listenAndServe(context.Background(), "test", srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve test")
}

func TestCacheStorageRequiresSetup(t *testing.T) {
	prev := cacheManager
	defer func() { cacheManager = prev }()

	cacheManager = nil
	_, err := cacheStorage()
	assert.Error(t, err)

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetCacheStorage").Return(nil)
	cacheManager = mgr
	_, err = cacheStorage()
	assert.Error(t, err)
}
