package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

// Config holds process configuration read from the environment.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	PGDSN       string `envconfig:"PG_DSN"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSecret   string `envconfig:"AUTH_JWT_SECRET"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"24h"`

	Timezone         string `envconfig:"BILLING_TIMEZONE" default:"UTC"`
	AutoProvision    bool   `envconfig:"CUTOFF_AUTO_PROVISION" default:"true"`
	ReportConfigPath string `envconfig:"REPORT_CONFIG"`
	BatchConcurrency int    `envconfig:"REPORT_BATCH_CONCURRENCY" default:"4"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.PGDSN
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: AUTH_JWT_SECRET is required")
	}
	if cfg.BatchConcurrency <= 0 {
		return nil, fmt.Errorf("config: REPORT_BATCH_CONCURRENCY must be positive, got %d", cfg.BatchConcurrency)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the billing time zone.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: BILLING_TIMEZONE: %w", err)
	}
	return loc, nil
}

// CacheEnabled reports whether a Redis report cache is configured.
func (c *Config) CacheEnabled() bool {
	return c != nil && c.RedisAddr != ""
}
