// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"lakehouse/internal/domain"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultDuckDBPath         = "lakehouse.duckdb"
	DefaultMetaDBPath         = "lakehouse_meta.sqlite"
	DefaultConfigDir          = "configs"
	DefaultListenAddr         = ":8080"
	DefaultLakehouseEnv       = "dev"
	DefaultFreshnessThreshold = 25 * time.Hour
	DefaultSchedules          = "sales_analytics=0 6 * * *"
)

// Config holds process configuration for the CLI, the scheduler and the HTTP API.
type Config struct {
	DuckDBPath   string // DuckDB database file holding the source and lakehouse catalogs
	MetaDBPath   string // path to SQLite run-history file
	ConfigDir    string // directory holding <env>.yaml environment files
	ListenAddr   string // HTTP listen address (default ":8080")
	LogLevel     string // log level: debug, info, warn, error (default "info")
	Env          string // process mode: "development" (default) or "production"
	LakehouseEnv string // data environment resolved through Environments (default "dev")

	// Execution
	MaxParallelStages  int           // stages run concurrently within a dependency level (default 1)
	StageTimeout       time.Duration // overrides per-pipeline stage timeouts when set
	FreshnessThreshold time.Duration // freshness check threshold (default 25h)
	QualityFailOn      []string      // check statuses that fail the quality stage (default none)
	QualityCritical    bool          // a failed quality stage aborts the run

	// Schedules maps pipeline name to a cron expression.
	Schedules map[string]string

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Auth for run-triggering endpoints. Empty leaves them open.
	JWTSecret     string // HS256 shared secret
	OIDCIssuerURL string // OIDC issuer; takes precedence over JWTSecret
	OIDCAudience  string // expected audience (client id) for OIDC tokens

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
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

// IsProduction returns true when the process is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DuckDBPath:   os.Getenv("DUCKDB_PATH"),
		MetaDBPath:   os.Getenv("META_DB_PATH"),
		ConfigDir:    os.Getenv("CONFIG_DIR"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		LakehouseEnv: os.Getenv("LAKEHOUSE_ENV"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		OIDCIssuerURL: os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:  os.Getenv("OIDC_AUDIENCE"),
	}

	if v := os.Getenv("MAX_PARALLEL_STAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("MAX_PARALLEL_STAGES must be a positive integer, got %q", v)
		}
		cfg.MaxParallelStages = n
	}
	var err error
	if cfg.StageTimeout, err = parseDurationEnv("STAGE_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.FreshnessThreshold, err = parseDurationEnv("FRESHNESS_THRESHOLD"); err != nil {
		return nil, err
	}

	if v := os.Getenv("QUALITY_FAIL_ON"); v != "" {
		for _, st := range strings.Split(v, ",") {
			st = strings.ToUpper(strings.TrimSpace(st))
			switch st {
			case "":
			case domain.CheckStatusFail, domain.CheckStatusStale:
				cfg.QualityFailOn = append(cfg.QualityFailOn, st)
			default:
				return nil, fmt.Errorf("QUALITY_FAIL_ON accepts FAIL and STALE, got %q", st)
			}
		}
	}
	if v := os.Getenv("QUALITY_CRITICAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("QUALITY_CRITICAL must be a boolean, got %q", v)
		}
		cfg.QualityCritical = b
	}

	schedules := DefaultSchedules
	if v, ok := os.LookupEnv("PIPELINE_SCHEDULES"); ok {
		schedules = v
	}
	if cfg.Schedules, err = ParseSchedules(schedules); err != nil {
		return nil, err
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.DuckDBPath == "" {
		cfg.DuckDBPath = DefaultDuckDBPath
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = DefaultMetaDBPath
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = DefaultConfigDir
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LakehouseEnv == "" {
		cfg.LakehouseEnv = DefaultLakehouseEnv
	}
	if cfg.MaxParallelStages == 0 {
		cfg.MaxParallelStages = 1
	}
	if cfg.FreshnessThreshold == 0 {
		cfg.FreshnessThreshold = DefaultFreshnessThreshold
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if _, err := os.Stat(cfg.ConfigDir); err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("config dir %s not readable; built-in environment defaults apply", cfg.ConfigDir))
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.JWTSecret == "" && cfg.OIDCIssuerURL == "" {
			return nil, fmt.Errorf("JWT_SECRET or OIDC_ISSUER_URL is required in production (ENV=production)")
		}
		if cfg.DuckDBPath == ":memory:" {
			return nil, fmt.Errorf("DUCKDB_PATH=:memory: is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// ParseSchedules parses "name=cron;name=cron" into a map. Blank entries are skipped.
func ParseSchedules(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, expr, ok := strings.Cut(entry, "=")
		name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
		if !ok || name == "" || expr == "" {
			return nil, fmt.Errorf("invalid PIPELINE_SCHEDULES entry %q: want name=cron", entry)
		}
		out[name] = expr
	}
	return out, nil
}

func parseDurationEnv(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
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
			return nil // .env not found is not an error
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
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
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
