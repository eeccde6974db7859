// Package config loads and validates the dev-server configuration from YAML,
// environment variables and defaults.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "25s" or as
// integer milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return d.Std().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var ms int64
		if err := value.Decode(&ms); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string or integer milliseconds: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full dev-server configuration.
type Config struct {
	// Root is the working directory of the application being served.
	Root string `yaml:"root"`
	// PagesDir is the page source directory, relative to Root.
	PagesDir string `yaml:"pages_dir"`
	// Dev toggles development mode.
	Dev bool `yaml:"dev"`
	// Addr is the main HTTP listen address.
	Addr string `yaml:"addr"`

	// MaxInactiveAge is how long a built page may go unpinged before the
	// sweeper evicts it.
	MaxInactiveAge Duration `yaml:"max_inactive_age"`
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval Duration `yaml:"sweep_interval"`
	// BatchWindow is how long a compilation pass absorbs further
	// invalidations before claiming targets.
	BatchWindow Duration `yaml:"batch_window"`

	// Extensions are the source extensions probed when resolving a page.
	Extensions []string `yaml:"extensions"`

	Build   BuildConfig   `yaml:"build"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	NATS    NATSConfig    `yaml:"nats"`
}

// BuildConfig describes the external build tool invocation.
type BuildConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig gates the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NATSConfig gates the optional lifecycle-event announcer.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.MaxInactiveAge.Std() <= 0 {
		return fmt.Errorf("max_inactive_age must be positive")
	}
	if c.SweepInterval.Std() <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.Build.Command == "" {
		return fmt.Errorf("build.command is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is set")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
