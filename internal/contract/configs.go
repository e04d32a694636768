package contract

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"github.com/huangsam/digitaldiary/schema"
)

// Default values for configuration.
const (
	DefaultListenAddr = ":8081"
	DefaultOriginURL  = "http://localhost:8080"
	DefaultServeAddr  = ":8080"
	DefaultStaticDir  = "public"
)

// DefaultWorkers is the default number of concurrent manifest fetches during install.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the final, validated runtime configuration.
type Config struct {
	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	// CachePrefix and CacheVersion build the current generation name "<prefix>-<version>".
	CachePrefix  string
	CacheVersion string

	// Manifest overrides the built-in asset manifest when non-empty.
	Manifest []string

	Origin      *url.URL
	Listen      string
	ServeAddr   string
	StaticDir   string
	SkipWaiting bool
	Workers     int

	Output     schema.OutputMode
	OutputFile string
	Width      int  // Terminal width override (0 = auto-detect)
	UseColors  bool // Enable colored labels in table output

	OtelEndpoint string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`
	CachePrefix    string `mapstructure:"cache-prefix"`
	CacheVersion   string `mapstructure:"cache-version"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Width          int    `mapstructure:"width"`
	Color          string `mapstructure:"color"`
	OtelEndpoint   string `mapstructure:"otel-endpoint"`

	// --- Fields from workerCmd/installCmd/activateCmd flags ---
	Origin      string   `mapstructure:"origin"`
	Listen      string   `mapstructure:"listen"`
	SkipWaiting bool     `mapstructure:"skip-waiting"`
	Workers     int      `mapstructure:"workers"`
	Manifest    []string `mapstructure:"manifest"`

	// --- Fields from serveCmd flags ---
	ServeAddr string `mapstructure:"serve-addr"`
	StaticDir string `mapstructure:"static-dir"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Manifest != nil {
		clone.Manifest = make([]string, len(c.Manifest))
		copy(clone.Manifest, c.Manifest)
	}
	if c.Origin != nil {
		origin := *c.Origin
		clone.Origin = &origin
	}
	return &clone
}

// CacheName returns the name of the generation this configuration makes current.
func (c *Config) CacheName() string {
	return c.CachePrefix + "-" + c.CacheVersion
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateGeneration(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	return processOrigin(cfg, input)
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.MemoryBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// ParseBoolString parses the yes/no style booleans accepted by flags like --color.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yes", "true", "1", "on":
		return true, nil
	case "no", "false", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("cannot parse %q as a boolean", s)
	}
}

// validateSimpleInputs processes and validates the output and worker fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.SkipWaiting = input.SkipWaiting
	cfg.OtelEndpoint = input.OtelEndpoint
	cfg.Listen = input.Listen
	if cfg.Listen == "" {
		cfg.Listen = DefaultListenAddr
	}
	cfg.ServeAddr = input.ServeAddr
	if cfg.ServeAddr == "" {
		cfg.ServeAddr = DefaultServeAddr
	}
	cfg.StaticDir = input.StaticDir
	if cfg.StaticDir == "" {
		cfg.StaticDir = DefaultStaticDir
	}

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if cfg.Output == "" {
		cfg.Output = schema.TextOut
	}
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for parquet output")
	}
	return nil
}

// validateGeneration validates the prefix, version and manifest that define the current generation.
func validateGeneration(cfg *Config, input *ConfigRawInput) error {
	cfg.CachePrefix = strings.TrimSpace(input.CachePrefix)
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = schema.DefaultCachePrefix
	}
	cfg.CacheVersion = strings.TrimSpace(input.CacheVersion)
	if cfg.CacheVersion == "" {
		cfg.CacheVersion = schema.DefaultCacheVersion
	}
	if strings.ContainsAny(cfg.CachePrefix+cfg.CacheVersion, " \t\n") {
		return fmt.Errorf("cache prefix and version must not contain whitespace (got %q, %q)", cfg.CachePrefix, cfg.CacheVersion)
	}

	cfg.Manifest = nil
	for _, p := range input.Manifest {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Manifest = append(cfg.Manifest, p)
		}
	}
	return nil
}

// validateBackendConfigs validates the cache backend configuration.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidCacheBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, memory", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	return ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect)
}

// processOrigin parses the origin the worker fronts.
func processOrigin(cfg *Config, input *ConfigRawInput) error {
	raw := input.Origin
	if raw == "" {
		raw = DefaultOriginURL
	}
	origin, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return fmt.Errorf("origin must be an http or https URL (received %q)", raw)
	}
	if origin.Host == "" {
		return fmt.Errorf("origin must include a host (received %q)", raw)
	}
	if !strings.HasSuffix(origin.Path, "/") {
		origin.Path += "/"
	}
	cfg.Origin = origin
	return nil
}
