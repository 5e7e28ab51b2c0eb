// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package config loads gatewarden process configuration from a YAML file,
// the environment, and command-line flags, in increasing precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatewarden/gatewarden/internal/auth"
)

// Config holds process configuration for the gatewarden commands.
type Config struct {
	// DatabaseURL is the PostgreSQL DSN. The DATABASE_URL environment
	// variable overrides the file value.
	DatabaseURL string `koanf:"database_url"`

	Session SessionConfig `koanf:"session"`
	Sweep   SweepConfig   `koanf:"sweep"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// SessionConfig configures the sliding-window expiration and token length.
type SessionConfig struct {
	ActivePeriod time.Duration `koanf:"active_period"`
	IdlePeriod   time.Duration `koanf:"idle_period"`
	TokenLength  int           `koanf:"token_length"`
}

// ServiceOptions translates the session settings into auth service options.
func (c SessionConfig) ServiceOptions() []auth.Option {
	return []auth.Option{
		auth.WithExpirationPolicy(auth.ExpirationPolicy{
			ActivePeriod: c.ActivePeriod,
			IdlePeriod:   c.IdlePeriod,
		}),
		auth.WithTokenGenerator(auth.NewRandomTokenGenerator(c.TokenLength)),
	}
}

// SweepConfig configures the dead-session sweeper daemon.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// MetricsConfig configures the observability HTTP server.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ActivePeriod: 24 * time.Hour,
			IdlePeriod:   14 * 24 * time.Hour,
			TokenLength:  40,
		},
		Sweep:   SweepConfig{Interval: time.Hour},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json"},
	}
}

// Load builds a Config from defaults, an optional YAML file, the
// DATABASE_URL environment variable, and an optional flag set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges. DatabaseURL is checked by the commands
// that need it, not here, so read-only commands work without one.
func (c *Config) Validate() error {
	if c.Session.ActivePeriod <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.active_period must be positive")
	}
	if c.Session.IdlePeriod <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.idle_period must be positive")
	}
	if c.Session.TokenLength <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.token_length must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("sweep.interval must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}
