package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	oerrors "git.home.luguber.info/inful/ondemand/internal/errors"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (missing file is fine when the path is the default), then environment
// overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults + env only.
		case err != nil:
			return nil, oerrors.Wrap(err, oerrors.CategoryConfig, oerrors.SeverityFatal, "reading config file")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, oerrors.Wrap(err, oerrors.CategoryConfig, oerrors.SeverityFatal, "parsing config file")
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, oerrors.ConfigError(err.Error())
	}
	return cfg, nil
}

// applyEnv overlays ONDEMAND_* environment variables. Durations accept either
// a time.Duration string or integer milliseconds.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ONDEMAND_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("ONDEMAND_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("ONDEMAND_PAGES_DIR"); v != "" {
		cfg.PagesDir = v
	}
	if v := os.Getenv("ONDEMAND_MAX_INACTIVE_AGE"); v != "" {
		if d, err := parseDurationEnv(v); err == nil {
			cfg.MaxInactiveAge = Duration(d)
		}
	}
	if v := os.Getenv("ONDEMAND_SWEEP_INTERVAL"); v != "" {
		if d, err := parseDurationEnv(v); err == nil {
			cfg.SweepInterval = Duration(d)
		}
	}
	if v := os.Getenv("ONDEMAND_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ONDEMAND_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ONDEMAND_NATS_URL"); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
}

func parseDurationEnv(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
