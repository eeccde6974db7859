package config

import (
	"log/slog"
	"time"
)

// Defaults returns the baseline configuration before file and environment
// overrides are applied.
func Defaults() *Config {
	return &Config{
		Root:           ".",
		PagesDir:       "pages",
		Dev:            true,
		Addr:           ":3000",
		MaxInactiveAge: Duration(25 * time.Second),
		SweepInterval:  Duration(5 * time.Second),
		BatchWindow:    Duration(50 * time.Millisecond),
		Extensions:     nil, // resolver falls back to its own defaults
		Build: BuildConfig{
			Command: "npx",
			Args:    []string{"webpack", "--entry"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{Enabled: false},
		NATS: NATSConfig{
			Enabled:       false,
			SubjectPrefix: "ondemand",
		},
	}
}

// SlogLevel maps the configured level string onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
