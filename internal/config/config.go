// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/logging"
)

// Config is the top-level configuration for a profiling run.
type Config struct {
	Logging  logging.Config `yaml:"logging"`
	Session  SessionConfig  `yaml:"session"`
	Adapters AdapterConfig  `yaml:"adapters"`
	// Analyze overrides the pattern matcher's trigger levels.
	Analyze analyze.Thresholds `yaml:"analyze"`
	// Store is the path of the DuckDB database sessions are saved to.
	// Empty disables persistence.
	Store string `yaml:"store"`
}

// SessionConfig configures the session coordinator.
type SessionConfig struct {
	// Timeout is the advisory session timeout. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
	// TopN is how many entries reports print or export by default.
	TopN int `yaml:"top_n"`
}

// AdapterConfig toggles the instrumentation sources for a session.
type AdapterConfig struct {
	CallTime bool `yaml:"calltime"`
	Alloc    bool `yaml:"alloc"`
	LineTime bool `yaml:"linetime"`
	// AllocInterval is the heap sampling period for the alloc adapter.
	AllocInterval time.Duration `yaml:"alloc_interval"`
}

// Default returns the configuration used when no file is given: all three
// adapters enabled, default thresholds, no persistence.
func Default() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Session: SessionConfig{
			TopN: 50,
		},
		Adapters: AdapterConfig{
			CallTime:      true,
			Alloc:         true,
			LineTime:      true,
			AllocInterval: 50 * time.Millisecond,
		},
		Analyze: analyze.DefaultThresholds(),
	}
}

// Load reads a YAML configuration file, layering it over the defaults so a
// partial file only overrides what it names.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no session could run with.
func (c *Config) Validate() error {
	if c.Session.Timeout < 0 {
		return fmt.Errorf("session.timeout must not be negative, got %s", c.Session.Timeout)
	}
	if c.Session.TopN < 0 {
		return fmt.Errorf("session.top_n must not be negative, got %d", c.Session.TopN)
	}
	if c.Adapters.AllocInterval < 0 {
		return fmt.Errorf("adapters.alloc_interval must not be negative, got %s", c.Adapters.AllocInterval)
	}
	if !c.Adapters.CallTime && !c.Adapters.Alloc && !c.Adapters.LineTime {
		return fmt.Errorf("at least one adapter must be enabled")
	}
	if err := c.Analyze.Validate(); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}
