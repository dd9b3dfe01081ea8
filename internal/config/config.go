// Package config handles application configuration and environment loading.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// LINEAGE_-prefixed environment variables. Nested keys use a double
// underscore in the environment: LINEAGE_INGEST__WORKERS sets ingest.workers.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LINEAGE_"

// ConfigFileEnv names the environment variable that points to the YAML file.
const ConfigFileEnv = EnvPrefix + "CONFIG_FILE"

// DBConfig selects and locates the graph store.
type DBConfig struct {
	Driver       string `koanf:"driver"`         // sqlite (default) or postgres
	Path         string `koanf:"path"`           // SQLite file
	URL          string `koanf:"url"`            // Postgres DSN
	MaxOpenConns int    `koanf:"max_open_conns"` // Postgres pool size
}

// RateLimitConfig bounds API request rates per workspace and client.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"` // 0 disables limiting
	Burst int     `koanf:"burst"`
}

// LineageConfig bounds lineage queries.
type LineageConfig struct {
	MaxDepth     int           `koanf:"max_depth"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
	ReadAttempts int           `koanf:"read_attempts"`
	ReadBackoff  time.Duration `koanf:"read_backoff"`
}

// IngestConfig tunes reconciliation.
type IngestConfig struct {
	Workers     int           `koanf:"workers"`
	MaxAttempts int           `koanf:"max_attempts"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	MaxBackoff  time.Duration `koanf:"max_backoff"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"` // OTLP/HTTP URL; falls back to OTEL_EXPORTER_OTLP_ENDPOINT
	Stdout       bool   `koanf:"stdout"`        // pretty-print spans to stdout
}

// ScheduleConfig is a manifest reconciled on a cron schedule.
type ScheduleConfig struct {
	Name      string `koanf:"name"`
	Cron      string `koanf:"cron"`
	Path      string `koanf:"path"`
	Workspace string `koanf:"workspace"`
	Resource  string `koanf:"resource"`
}

// Config holds the configuration of the lineage server.
type Config struct {
	Env                string           `koanf:"env"`       // "development" (default) or "production"
	LogLevel           string           `koanf:"log_level"` // debug, info, warn, error
	ListenAddr         string           `koanf:"listen_addr"`
	DB                 DBConfig         `koanf:"db"`
	CORSAllowedOrigins []string         `koanf:"cors_allowed_origins"`
	RateLimit          RateLimitConfig  `koanf:"rate_limit"`
	Lineage            LineageConfig    `koanf:"lineage"`
	Ingest             IngestConfig     `koanf:"ingest"`
	Telemetry          TelemetryConfig  `koanf:"telemetry"`
	Schedules          []ScheduleConfig `koanf:"schedules"`
	SeedDemo           bool             `koanf:"seed_demo"` // load the demo graph on start

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"env":                    "development",
		"log_level":              "info",
		"listen_addr":            ":8080",
		"db.driver":              "sqlite",
		"db.path":                "lineage.sqlite",
		"db.max_open_conns":      10,
		"rate_limit.rps":         100.0,
		"rate_limit.burst":       200,
		"lineage.max_depth":      domain.DefaultMaxLineageDepth,
		"lineage.query_timeout":  "30s",
		"lineage.read_attempts":  3,
		"lineage.read_backoff":   "50ms",
		"ingest.workers":         8,
		"ingest.max_attempts":    3,
		"ingest.base_backoff":    "100ms",
		"ingest.max_backoff":     "5s",
		"telemetry.service_name": "catalog-lineage",
	}
}

// Load reads configuration. path overrides LINEAGE_CONFIG_FILE; when both
// are empty only defaults and the environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSAllowedOrigins = compactNonEmpty(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps LINEAGE_INGEST__MAX_ATTEMPTS to ingest.max_attempts.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// listKeys are the keys whose environment value is a comma-separated list.
var listKeys = map[string]bool{
	"cors_allowed_origins": true,
}

// envValue maps an environment variable to its key and splits list values.
func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// Validate checks that the configuration is internally consistent and
// collects warnings for insecure defaults.
func (c *Config) Validate() error {
	dialect, err := internaldb.ParseDialect(c.DB.Driver)
	if err != nil {
		return err
	}
	switch dialect {
	case internaldb.DialectPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("db.url is required for the postgres driver")
		}
	case internaldb.DialectSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	}
	if c.Lineage.MaxDepth < 1 {
		return fmt.Errorf("lineage.max_depth must be at least 1, got %d", c.Lineage.MaxDepth)
	}
	if c.Lineage.QueryTimeout < 0 {
		return fmt.Errorf("lineage.query_timeout must not be negative")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("ingest.max_attempts must be at least 1, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.MaxBackoff > 0 && c.Ingest.MaxBackoff < c.Ingest.BaseBackoff {
		return fmt.Errorf("ingest.max_backoff (%s) is below ingest.base_backoff (%s)", c.Ingest.MaxBackoff, c.Ingest.BaseBackoff)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative")
	}

	names := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" || s.Path == "" || s.Cron == "" {
			return fmt.Errorf("schedules[%d]: name, cron and path are required", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = struct{}{}
	}

	if c.IsProduction() {
		for _, o := range c.CORSAllowedOrigins {
			if o == "*" {
				return fmt.Errorf("CORS wildcard (*) is not allowed in production (env=production)")
			}
		}
		if dialect == internaldb.DialectSQLite {
			c.Warnings = append(c.Warnings, "running production on SQLite; set db.driver=postgres for shared deployments")
		}
	}
	if c.RateLimit.RPS == 0 {
		c.Warnings = append(c.Warnings, "rate limiting is disabled")
	}
	return nil
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
