// Package config loads runtime configuration for the CEE from environment
// variables, applying the defaults and validation named in the external
// interfaces contract.
package config

import (
	"os"
	"strconv"

	"github.com/franklinbaldo/baliza/pkg/errz"
)

// Config holds the environment-sourced knobs every component needs at
// construction time.
type Config struct {
	ExtractConcurrency int
	MaxRPS             float64
	MinRPS             float64
	HTTPTimeoutSeconds int
	DBPath             string
	ConfigPath         string
	RunID              string
	StatusAddr         string // empty disables the optional status/metrics HTTP server
}

// Load reads the recognized environment variables, applying defaults, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		ExtractConcurrency: envInt("EXTRACT_CONCURRENCY", 8),
		MaxRPS:             envFloat("MAX_RPS", 10),
		MinRPS:             envFloat("MIN_RPS", 1),
		HTTPTimeoutSeconds: envInt("HTTP_TIMEOUT_SECONDS", 30),
		DBPath:             envStr("DB_PATH", "baliza.db"),
		ConfigPath:         envStr("CONFIG_PATH", "endpoints.yaml"),
		RunID:              os.Getenv("RUN_ID"),
		StatusAddr:         os.Getenv("STATUS_ADDR"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants a malformed environment would violate.
func (c *Config) Validate() error {
	if c.ExtractConcurrency <= 0 {
		return errz.ConfigError("config.Validate", "EXTRACT_CONCURRENCY must be positive, got %d", c.ExtractConcurrency)
	}
	if c.MinRPS <= 0 {
		return errz.ConfigError("config.Validate", "MIN_RPS must be positive, got %v", c.MinRPS)
	}
	if c.MaxRPS < c.MinRPS {
		return errz.ConfigError("config.Validate", "MAX_RPS (%v) must be >= MIN_RPS (%v)", c.MaxRPS, c.MinRPS)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return errz.ConfigError("config.Validate", "HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	if c.DBPath == "" {
		return errz.ConfigError("config.Validate", "DB_PATH must not be empty")
	}
	if c.ConfigPath == "" {
		return errz.ConfigError("config.Validate", "CONFIG_PATH must not be empty")
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
