package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/outwriter"
	"github.com/huangsam/digitaldiary/internal/telemetry"
	"github.com/spf13/cobra"
)

// newWorker builds a worker for the configured generation on the given store and network.
func newWorker(c *contract.Config, store contract.CacheStorage, network core.Fetcher) (*core.Worker, error) {
	manifest := core.DefaultManifest
	if len(c.Manifest) > 0 {
		manifest = core.Manifest(c.Manifest)
	}
	return core.NewWorker(core.WorkerConfig{
		Prefix:      c.CachePrefix,
		Version:     c.CacheVersion,
		Manifest:    manifest,
		Origin:      c.Origin,
		Workers:     c.Workers,
		SkipWaiting: c.SkipWaiting,
	}, store, network)
}

// registerWorker builds a registration for the configured origin and brings the
// configured worker up in it. A failed install still returns the registration.
func registerWorker(ctx context.Context, c *contract.Config, store contract.CacheStorage, network core.Fetcher) (*core.Registration, error) {
	reg := core.NewRegistration(c.Origin, network)
	w, err := newWorker(c, store, network)
	if err != nil {
		return nil, err
	}
	return reg, reg.Register(ctx, w)
}

// reloader brings a newly configured generation up next to the running one.
// The origin is fixed for the life of the process.
type reloader struct {
	reg     *core.Registration
	store   contract.CacheStorage
	network core.Fetcher
	origin  *url.URL
	load    func() (*contract.Config, error)
}

// reload re-reads the configuration and registers its generation. The new
// worker waits for the open consumers of the active one unless it skips
// waiting. Reloading the generation that is already running does nothing.
func (rl *reloader) reload(ctx context.Context) error {
	loaded, err := rl.load()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	next := loaded.Clone()
	next.Origin = rl.origin

	name := next.CacheName()
	for _, running := range []*core.Worker{rl.reg.Active(), rl.reg.Waiting()} {
		if running != nil && running.CacheName() == name {
			contract.LogInfo("%s is already running, nothing to reload", name)
			return nil
		}
	}

	w, err := newWorker(next, rl.store, rl.network)
	if err != nil {
		return err
	}
	if err := rl.reg.Register(ctx, w); err != nil {
		return err
	}
	contract.LogInfo("Registered %s (%s)", name, w.State())
	return nil
}

// run reloads on every signal until ctx ends. Failures are logged and the
// running worker keeps serving.
func (rl *reloader) run(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := rl.reload(ctx); err != nil {
				contract.LogWarn("Reload failed", err)
			}
		}
	}
}

// workerCmd runs the caching front process.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the offline cache in front of the origin",
	Long: `Run the caching worker between the app's pages and the origin.

The worker installs the current generation (all manifest assets, or nothing),
activates it, deletes older generations and then answers GET requests
cache-first with a background refresh. Everything else goes to the origin.

Admin routes:
  GET  /__worker/state    - active and waiting workers
  POST /__worker/message  - {"type":"skip-waiting"}

Send SIGHUP to re-read the configuration. A new cache version is installed
next to the running one and waits until no page is using the old worker,
unless it skips waiting or receives the skip-waiting message.

Examples:
  # Front the default origin on :8081
  diary worker

  # Roll out a new generation without waiting for open pages
  diary worker --cache-version v4 --skip-waiting`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdown, err := telemetry.Setup(ctx, "diary-worker", cfg.OtelEndpoint)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				contract.LogWarn("Failed to flush traces", err)
			}
		}()

		store, err := cacheStorage()
		if err != nil {
			return err
		}
		network := core.NewHTTPFetcher(upstreamTimeout)
		reg, err := registerWorker(ctx, cfg, store, network)
		if err != nil {
			if reg == nil || !errors.Is(err, core.ErrInstallFailed) {
				return err
			}
			// Keep serving: requests pass through to the network until a
			// later install succeeds.
			contract.LogWarn("Install failed, serving without a cache", err)
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		rl := &reloader{
			reg:     reg,
			store:   store,
			network: network,
			origin:  cfg.Origin,
			load: func() (*contract.Config, error) {
				if err := loadConfig(); err != nil {
					return nil, err
				}
				return cfg, nil
			},
		}
		srv := newHTTPServer(cfg.Listen, reg)
		go rl.run(ctx, hup)

		serveErr := listenAndServe(ctx, "worker", srv)
		reg.Close()
		return serveErr
	},
}

// installCmd installs the current generation and exits.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the current cache generation",
	Long: `Fetch every manifest asset from the origin and store them as one generation.

Install is all-or-nothing: if any asset fails, nothing is written and the
command exits with an error. Older generations are left alone; run
'diary activate' or start 'diary worker' to clean them up.

Examples:
  # Pre-populate the current generation
  diary install

  # Install a specific version into PostgreSQL
  DIARY_CACHE_BACKEND=postgresql DIARY_CACHE_DB_CONNECT="..." diary install --cache-version v4`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		w, err := newWorker(cfg, store, core.NewHTTPFetcher(upstreamTimeout))
		if err != nil {
			return err
		}
		if err := w.Install(rootCtx); err != nil {
			return err
		}
		status := w.Status()
		return outwriter.NewOutWriter().WriteRegistration(core.RegistrationState{Waiting: &status}, cfg)
	},
}

// activateCmd activates the current generation and removes older ones.
var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the current generation and delete older ones",
	Long: `Bring the current generation to the active state in this process.

A generation already complete in the store is resumed without touching the
network; otherwise it is installed first. Activation deletes every other
generation that shares the cache prefix.

Examples:
  # Clean up after a version bump
  diary activate --cache-version v4`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		reg, err := registerWorker(rootCtx, cfg, store, core.NewHTTPFetcher(upstreamTimeout))
		if err != nil {
			return err
		}
		return outwriter.NewOutWriter().WriteRegistration(reg.State(), cfg)
	},
}
