// Package config loads and validates the worker-process configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dirigent configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Cache   CacheConfig   `yaml:"cache"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines where the job log database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig defines cache lifetime policy.
type CacheConfig struct {
	// MergeTTL is the expiry applied by merge-update writes.
	MergeTTL Duration `yaml:"merge_ttl"`

	// ResultTTL is how long successful job fingerprints stay cached.
	ResultTTL Duration `yaml:"result_ttl"`
}

// APIConfig defines the inspection HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Defaults returns the configuration used when no file is supplied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "dirigent",
			LogLevel: "INFO",
		},
		State: StateConfig{
			Path: "dirigent.db",
		},
		Cache: CacheConfig{
			MergeTTL:  Duration(8 * time.Hour),
			ResultTTL: Duration(12 * time.Hour),
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8317",
		},
	}
}

// Load reads path, overlays it onto Defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Service.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log_level %q", c.Service.LogLevel)
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path is empty")
	}
	if c.Cache.MergeTTL < 0 || c.Cache.ResultTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the api is enabled")
	}
	return nil
}
