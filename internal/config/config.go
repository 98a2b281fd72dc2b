// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application
// settings such as server timeouts, logging, the database path, rate
// limiting, background job intervals, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// JobsConfig controls the background job scheduler.
type JobsConfig struct {
	Enabled            bool          // start all jobs on boot
	BuySoonInterval    time.Duration // between buy-soon evaluations
	DoseDueInterval    time.Duration // between dose-due evaluations
	MissedDoseInterval time.Duration // between missed-dose evaluations
	CleanupInterval    time.Duration // between history cleanups
	RetentionDays      int           // notification/audit retention
}

// RulesConfig holds the default rule parameters and windows.
type RulesConfig struct {
	BuySoonDays     int           // default days-ahead for buy-soon
	DoseDueMinutes  int           // default minutes-ahead for dose-due
	MissedDoseHours int           // default hours-overdue for missed-dose
	DedupWindow     time.Duration // BUY_SOON duplicate suppression window
	DueWindow       time.Duration // schedule "due" look-ahead
	MissedAfter     time.Duration // schedule "missed" threshold
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// App
	APIBasePath string
	DBPath      string

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS CORSConfig

	// Domain
	Jobs  JobsConfig
	Rules RulesConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		DBPath:      getenv("DB_PATH", "medtrack.db"),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		Jobs: JobsConfig{
			Enabled:            getbool("JOBS_ENABLED", true),
			BuySoonInterval:    getdur("JOB_BUY_SOON_INTERVAL", 6*time.Hour),
			DoseDueInterval:    getdur("JOB_DOSE_DUE_INTERVAL", 5*time.Minute),
			MissedDoseInterval: getdur("JOB_MISSED_DOSE_INTERVAL", 30*time.Minute),
			CleanupInterval:    getdur("JOB_CLEANUP_INTERVAL", 24*time.Hour),
			RetentionDays:      getint("RETENTION_DAYS", 30),
		},

		Rules: RulesConfig{
			BuySoonDays:     getint("RULE_BUY_SOON_DAYS", 7),
			DoseDueMinutes:  getint("RULE_DOSE_DUE_MINUTES", 60),
			MissedDoseHours: getint("RULE_MISSED_DOSE_HOURS", 2),
			DedupWindow:     getdur("RULE_DEDUP_WINDOW", 24*time.Hour),
			DueWindow:       getdur("RULE_DUE_WINDOW", time.Hour),
			MissedAfter:     getdur("RULE_MISSED_AFTER", time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-medtrack-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	return cfg, cfg.validate()
}

// validate rejects configurations that would misbehave at runtime.
func (c Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be numeric")
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return errors.New("GIN_MODE must be debug, release, or test")
	}
	if c.RateRPS < 0 {
		return errors.New("RATE_RPS must not be negative")
	}
	if c.RateBurst < 1 {
		return errors.New("RATE_BURST must be at least 1")
	}
	if c.Jobs.RetentionDays < 1 || c.Jobs.RetentionDays > 365 {
		return errors.New("RETENTION_DAYS must be between 1 and 365")
	}
	if c.Rules.BuySoonDays < 1 || c.Rules.BuySoonDays > 30 {
		return errors.New("RULE_BUY_SOON_DAYS must be between 1 and 30")
	}
	if c.Rules.DoseDueMinutes < 1 || c.Rules.DoseDueMinutes > 120 {
		return errors.New("RULE_DOSE_DUE_MINUTES must be between 1 and 120")
	}
	if c.Rules.MissedDoseHours < 1 || c.Rules.MissedDoseHours > 24 {
		return errors.New("RULE_MISSED_DOSE_HOURS must be between 1 and 24")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0, 1]")
	}
	return nil
}

// getenv returns the environment value or a default when unset/blank.
func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getint(key string, def int) int {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := getenv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := getenv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := getenv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures the base path starts with "/" and has no
// trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
