package config

import (
	"time"

	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/infra/cache"
	"github.com/gigaelk/worrybox/internal/recovery"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logging  LoggingConfig     `yaml:"logging"`
	Env      string            `yaml:"env"`      // development, production
	Platform string            `yaml:"platform"` // local, render
	Recovery recovery.Config   `yaml:"recovery"`
	Database dbrecovery.Config `yaml:"database"`
	Redis    cache.Config      `yaml:"redis"`
	Timeouts TimeoutConfig     `yaml:"timeouts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TimeoutConfig controls request timeout resolution. Resolution order at
// request time: route-specific > method-specific > default.
type TimeoutConfig struct {
	Default   time.Duration            `yaml:"default"`
	PerMethod map[string]time.Duration `yaml:"per_method"`
	PerRoute  map[string]time.Duration `yaml:"per_route"`
}

// Resolve returns the timeout for a method/path pair.
func (t TimeoutConfig) Resolve(method, path string) time.Duration {
	if d, ok := t.PerRoute[path]; ok && d > 0 {
		return d
	}
	if d, ok := t.PerMethod[method]; ok && d > 0 {
		return d
	}
	return t.Default
}

// IsProduction reports whether the app runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
