// Package config loads the sidecar configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds the storefront cache sidecar configuration.
type Config struct {
	// APIBaseURL is the storefront REST API root.
	APIBaseURL string `env:"STOREFRONT_API_URL" envDefault:"http://localhost:8081/api/v1"`

	// UserAgent is sent with every API request.
	UserAgent string `env:"STOREFRONT_USER_AGENT" envDefault:"storefront-cache/0.1.0"`

	// Port is the HTTP listen port of the sidecar.
	Port string `env:"STOREFRONT_PORT" envDefault:"8080"`

	LogLevel  string `env:"STOREFRONT_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"STOREFRONT_LOG_PRETTY" envDefault:"false"`

	// Backend selects the cache store: sqlite, redis or memory.
	Backend string `env:"STOREFRONT_CACHE_BACKEND" envDefault:"sqlite"`

	SQLitePath string `env:"STOREFRONT_SQLITE_PATH" envDefault:"storefront-cache.db"`

	RedisAddr string `env:"STOREFRONT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"STOREFRONT_REDIS_DB" envDefault:"0"`

	// RedisRetention is the Redis-level expiry of cache keys; 0 disables it.
	RedisRetention time.Duration `env:"STOREFRONT_REDIS_RETENTION" envDefault:"48h"`

	// SweepInterval is how often expired entries are purged; 0 disables sweeping.
	SweepInterval time.Duration `env:"STOREFRONT_SWEEP_INTERVAL" envDefault:"15m"`

	// SweepGrace keeps expired entries readable as expired for this long.
	SweepGrace time.Duration `env:"STOREFRONT_SWEEP_GRACE" envDefault:"1h"`

	HTTPTimeout time.Duration `env:"STOREFRONT_HTTP_TIMEOUT" envDefault:"15s"`

	// PrefetchConcurrency bounds parallel page prefetches; 0 disables prefetch.
	PrefetchConcurrency int `env:"STOREFRONT_PREFETCH_CONCURRENCY" envDefault:"4"`
}

// Load parses the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite backend requires STOREFRONT_SQLITE_PATH")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis backend requires STOREFRONT_REDIS_ADDR")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q (want sqlite, redis or memory)", c.Backend)
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("STOREFRONT_API_URL is required")
	}
	if c.SweepInterval < 0 || c.SweepGrace < 0 || c.RedisRetention < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.PrefetchConcurrency < 0 {
		return fmt.Errorf("prefetch concurrency must be >= 0 (got %d)", c.PrefetchConcurrency)
	}
	return nil
}
