// Package config provides configuration loading for moderationd.
//
// Configuration comes from defaults overridden by MODERATIOND_-prefixed
// environment variables, e.g. MODERATIOND_SERVER_PORT=9180.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "MODERATIOND_"

// Config holds the complete moderationd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Queue   QueueConfig   `koanf:"queue"`
	AutoMod AutoModConfig `koanf:"automod"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the ops HTTP surface configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// BackendConfig holds the backend service client configuration.
type BackendConfig struct {
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	FallbackRPS   float64       `koanf:"fallback_rps"`
	FallbackBurst int           `koanf:"fallback_burst"`
}

// IngestConfig holds the live ingestion loop configuration.
type IngestConfig struct {
	Interval time.Duration `koanf:"interval"`
	Limit    int           `koanf:"limit"`
}

// QueueConfig holds review queue configuration.
type QueueConfig struct {
	Limit int `koanf:"limit"`
}

// AutoModConfig holds the auto-moderation gate's initial state.
type AutoModConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaults is the baseline configuration, loaded before the environment.
var defaults = []byte(`
server:
  port: 9180
  shutdown_timeout: 10s
backend:
  base_url: http://localhost:8000
  timeout: 10s
  fallback_rps: 2
  fallback_burst: 4
ingest:
  interval: 10s
  limit: 20
queue:
  limit: 50
automod:
  enabled: false
logging:
  level: info
  format: json
`)

// Load builds the configuration from defaults and environment variables.
//
// Environment variables use the MODERATIOND_ prefix with an underscore
// separator: the first underscore after the prefix splits section from
// field, e.g.
//
//	MODERATIOND_SERVER_PORT      -> server.port
//	MODERATIOND_BACKEND_BASE_URL -> backend.base_url
//	MODERATIOND_INGEST_INTERVAL  -> ingest.interval
//	MODERATIOND_AUTOMOD_ENABLED  -> automod.enabled
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return parts[0]
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend base URL required")
	}
	if c.Ingest.Interval <= 0 {
		return errors.New("ingest interval must be positive")
	}
	if c.Ingest.Limit < 1 {
		return errors.New("ingest limit must be at least 1")
	}
	if c.Queue.Limit < 1 {
		return errors.New("queue limit must be at least 1")
	}
	return nil
}
