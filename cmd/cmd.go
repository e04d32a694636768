// Package cmd defines the command-line interface for diary.
package cmd

import (
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheGenerationsCmd)
	cacheCmd.AddCommand(cacheEntriesCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Cache backend: sqlite or mysql or postgresql or memory")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("cache-prefix", schema.DefaultCachePrefix, "Prefix of every cache generation name")
	rootCmd.PersistentFlags().String("cache-version", schema.DefaultCacheVersion, "Version tag of the current cache generation")
	rootCmd.PersistentFlags().String("origin", contract.DefaultOriginURL, "Origin URL that serves the app and its API")
	rootCmd.PersistentFlags().StringSlice("manifest", nil, "Override the asset manifest with these relative paths")
	rootCmd.PersistentFlags().Bool("skip-waiting", true, "Activate a new worker as soon as it is installed")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent manifest fetches during install")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("otel-endpoint", "", "OTLP/HTTP endpoint for traces (empty disables tracing)")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of workerCmd to Viper
	workerCmd.Flags().String("listen", contract.DefaultListenAddr, "Address the caching worker listens on")
	if err := viper.BindPFlags(workerCmd.Flags()); err != nil {
		contract.LogFatal("Error binding worker flags", err)
	}

	// Bind all flags of serveCmd to Viper
	serveCmd.Flags().String("serve-addr", contract.DefaultServeAddr, "Address the origin server listens on")
	serveCmd.Flags().String("static-dir", contract.DefaultStaticDir, "Directory holding the static app")
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		contract.LogFatal("Error binding serve flags", err)
	}

	// Bind all flags of cacheEntriesCmd to Viper
	cacheEntriesCmd.Flags().String("generation", "", "Generation to list (defaults to the current generation)")
	if err := viper.BindPFlags(cacheEntriesCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache entries flags", err)
	}

	// Bind all flags of cacheMigrateCmd to Viper
	cacheMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(cacheMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache migrate flags", err)
	}
}
