// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ashita-ai/hibana/internal/analysis"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// History settings. Backend is "sqlite", "postgres", or "none".
	HistoryBackend string
	SQLitePath     string
	DatabaseURL    string // Postgres URL, used when Backend is "postgres".

	// Analysis settings.
	SessionCapacity  int
	ParseParallelism int   // Decode goroutines per parse; <2 is sequential.
	MaxLogBytes      int64 // Cap on decompressed event log size; 0 is unlimited.

	// Skew detection thresholds.
	SkewRatio     float64
	SkewMinTaskMs int64
	SkewMinTasks  int
	ImbalanceCV   float64
	GCRatio       float64
	ShuffleBytes  int64

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.

	// Rate limiting for analysis submissions, keyed by client IP.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	defaults := analysis.DefaultSkewConfig()
	cfg := Config{
		Port:                envInt("HIBANA_PORT", 8080),
		ReadTimeout:         envDuration("HIBANA_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("HIBANA_WRITE_TIMEOUT", 120*time.Second),
		HistoryBackend:      envStr("HIBANA_HISTORY_BACKEND", "sqlite"),
		SQLitePath:          envStr("HIBANA_SQLITE_PATH", "hibana.db"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SessionCapacity:     envInt("HIBANA_SESSION_CAPACITY", 100),
		ParseParallelism:    envInt("HIBANA_PARSE_PARALLELISM", 1),
		MaxLogBytes:         int64(envInt("HIBANA_MAX_LOG_BYTES", 0)),
		SkewRatio:           envFloat("HIBANA_SKEW_RATIO", defaults.SkewRatio),
		SkewMinTaskMs:       int64(envInt("HIBANA_SKEW_MIN_TASK_MS", int(defaults.MinTaskMs))),
		SkewMinTasks:        envInt("HIBANA_SKEW_MIN_TASKS", defaults.MinTasks),
		ImbalanceCV:         envFloat("HIBANA_IMBALANCE_CV", defaults.ImbalanceCV),
		GCRatio:             envFloat("HIBANA_GC_RATIO", defaults.GCRatio),
		ShuffleBytes:        envInt64("HIBANA_SHUFFLE_BYTES", defaults.ShuffleBytes),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "hibana"),
		LogLevel:            envStr("HIBANA_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("HIBANA_MAX_REQUEST_BODY_BYTES", 64*1024*1024)),
		RateLimitEnabled:    envBool("HIBANA_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:        envFloat("HIBANA_RATE_LIMIT_RPS", 5),
		RateLimitBurst:      envInt("HIBANA_RATE_LIMIT_BURST", 10),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	switch c.HistoryBackend {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("config: HIBANA_SQLITE_PATH is required for the sqlite backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	case "none":
	default:
		return fmt.Errorf("config: unknown HIBANA_HISTORY_BACKEND %q", c.HistoryBackend)
	}
	if c.SessionCapacity <= 0 {
		return fmt.Errorf("config: HIBANA_SESSION_CAPACITY must be positive")
	}
	if c.SkewRatio <= 1 {
		return fmt.Errorf("config: HIBANA_SKEW_RATIO must be greater than 1")
	}
	if c.SkewMinTasks < 2 {
		return fmt.Errorf("config: HIBANA_SKEW_MIN_TASKS must be at least 2")
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return fmt.Errorf("config: HIBANA_GC_RATIO must be in (0, 1)")
	}
	if c.ShuffleBytes <= 0 {
		return fmt.Errorf("config: HIBANA_SHUFFLE_BYTES must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: HIBANA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: rate limit RPS and burst must be positive when enabled")
	}
	return nil
}

// AnalysisConfig maps the configured thresholds onto the analysis layer.
func (c Config) AnalysisConfig() analysis.Config {
	return analysis.Config{
		Skew: analysis.SkewConfig{
			SkewRatio:    c.SkewRatio,
			MinTaskMs:    c.SkewMinTaskMs,
			MinTasks:     c.SkewMinTasks,
			ImbalanceCV:  c.ImbalanceCV,
			GCRatio:      c.GCRatio,
			ShuffleBytes: c.ShuffleBytes,
		},
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
