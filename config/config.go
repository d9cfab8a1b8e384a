// Package config loads the server configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/depreciation-engine/generic"
)

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file, ":memory:" allowed
	DSN    string `yaml:"dsn"`    // postgres connection string
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Tenants to post for on each tick. Empty means every tenant found in
	// the asset store.
	Tenants []string `yaml:"tenants"`
}

type DepreciationConfig struct {
	DefaultTenant string `yaml:"default_tenant"`
	Rounding      string `yaml:"rounding"`
	// Timezone the invocation time is converted to before the period is
	// resolved (IANA name). Empty means UTC.
	Timezone string `yaml:"timezone"`
	// MinimumCent posts 0.01 instead of a period amount that rounds to 0.00.
	MinimumCent bool `yaml:"minimum_cent"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Depreciation DepreciationConfig `yaml:"depreciation"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./depreciation.db",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Depreciation: DepreciationConfig{
			DefaultTenant: "default",
			Rounding:      string(generic.RoundHalfAwayFromZero),
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// Environment variables are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DEPRECIATION_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DEPRECIATION_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DEPRECIATION_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DEPRECIATION_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPRECIATION_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if _, err := c.RoundingMode(); err != nil {
		return fmt.Errorf("depreciation.rounding: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("depreciation.timezone: %w", err)
	}
	return nil
}

// RoundingMode returns the parsed rounding mode.
func (c *Config) RoundingMode() (generic.RoundingMode, error) {
	return generic.ParseRoundingMode(c.Depreciation.Rounding)
}

// Location returns the period resolution timezone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Depreciation.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Depreciation.Timezone)
}

// SchedulerTenants returns the configured tenants as typed IDs.
func (c *Config) SchedulerTenants() []generic.TenantID {
	out := make([]generic.TenantID, 0, len(c.Scheduler.Tenants))
	for _, t := range c.Scheduler.Tenants {
		out = append(out, generic.TenantID(t))
	}
	return out
}
