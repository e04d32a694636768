package cmd

import (
	"fmt"
	"os"

	"github.com/huangsam/digitaldiary/internal/iocache"
	"github.com/huangsam/digitaldiary/internal/outwriter"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheCmd focused on cache store management.
//
// Note: clear and migrate only validate configuration and never open the
// store, since opening it applies the latest migrations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline cache store",
	Long: `Inspect and manage the store that holds every cache generation.

Each generation is named "<prefix>-<version>" and holds the responses the
worker serves while offline. Activating a worker deletes older generations.

Supported backends: SQLite (default), MySQL, PostgreSQL, or Memory

Subcommands:
  status      - Show store statistics and connection info
  generations - List generations and mark the current one
  entries     - List the responses stored in a generation
  clear       - Remove every generation
  export      - Export generation and entry metadata to Parquet
  migrate     - Move the store schema to a given version

Examples:
  # Check cache status
  diary cache status

  # List what the v3 worker would serve offline
  diary cache entries --generation digital-diary-v3`,
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the cache store.

Displays:
- Backend type and connection status
- Number of generations and cached responses
- Newest and oldest entry timestamps
- Stored body size

Examples:
  # Check cache status
  diary cache status

  # Machine-readable status
  diary cache status --output json`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		status, err := store.GetStatus(rootCtx)
		if err != nil {
			return fmt.Errorf("failed to get cache status: %w", err)
		}
		return outwriter.NewOutWriter().WriteCacheStatus(status, cfg)
	},
}

// cacheGenerationsCmd lists generations.
var cacheGenerationsCmd = &cobra.Command{
	Use:   "generations",
	Short: "List cache generations",
	Long: `List every generation in the store with its entry count and size.

The generation named by --cache-prefix and --cache-version is marked current;
all others are stale and will be deleted when that worker activates.

Examples:
  # List generations as CSV
  diary cache generations --output csv`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		generations, err := store.Generations(rootCtx)
		if err != nil {
			return fmt.Errorf("failed to list generations: %w", err)
		}
		current := cfg.CacheName()
		for i := range generations {
			generations[i].Current = generations[i].Name == current
		}
		return outwriter.NewOutWriter().WriteGenerations(generations, cfg)
	},
}

// cacheEntriesCmd lists entry metadata of one generation.
var cacheEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List the responses stored in a generation",
	Long: `List the method, URL, status, type and size of every stored response.

Bodies are never printed.

Examples:
  # Entries of the current generation
  diary cache entries

  # Entries of an older generation as JSON
  diary cache entries --generation digital-diary-v2 --output json`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		generation := viper.GetString("generation")
		if generation == "" {
			generation = cfg.CacheName()
		}
		entries, err := store.Entries(rootCtx, generation)
		if err != nil {
			return fmt.Errorf("failed to list entries of %s: %w", generation, err)
		}
		infos := make([]schema.EntryInfo, 0, len(entries))
		for _, e := range entries {
			infos = append(infos, e.Info())
		}
		return outwriter.NewOutWriter().WriteEntries(infos, cfg)
	},
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache generation",
	Long: `Delete every generation from the configured backend.

Use this when:
- The store was written by an incompatible build
- Testing a cold install

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache tables

Examples:
  # Clear SQLite cache (default)
  diary cache clear

  # Clear MySQL cache (set connection string via env variable)
  DIARY_CACHE_BACKEND=mysql DIARY_CACHE_DB_CONNECT="..." diary cache clear`,
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := iocache.ClearCache(cfg.CacheBackend, iocache.GetDBFilePath(), cfg.CacheDBConnect); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Println("Cache cleared successfully.")
		return nil
	},
}

// cacheExportCmd exports cache metadata to Parquet files.
var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cache metadata to Parquet files",
	Long: `Export generation and entry metadata to Parquet files for analysis.

Writes <output-file>.generations.parquet and <output-file>.entries.parquet.
Response bodies are not exported.

Examples:
  # Export to ./diary-cache.*.parquet
  diary cache export --output-file diary-cache`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := cacheStorage()
		if err != nil {
			return err
		}
		return iocache.ExecuteCacheExport(rootCtx, store, cfg.CacheName(), cfg.OutputFile, os.Stdout)
	},
}

// cacheMigrateCmd migrates the store schema.
var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the cache store schema",
	Long: `Apply or roll back schema migrations of the cache store.

Examples:
  # Migrate to the latest schema
  diary cache migrate

  # Roll back every migration
  diary cache migrate --target-version 0`,
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := iocache.MigrateCache(cfg.CacheBackend, cfg.CacheDBConnect, viper.GetInt("target-version"), os.Stdout); err != nil {
			return fmt.Errorf("failed to migrate cache: %w", err)
		}
		return nil
	},
}
