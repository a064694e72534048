// Package log holds the process-wide slog setup for copilotd. The daemon
// logs human-readable text during development and JSON in production, where
// the lines are shipped off the vehicle.
package log

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init configures the global logger. level is one of slog's textual levels
// ("debug", "info", "warn", "error"); anything unparseable falls back to
// info. environment selects the output format: "production" gets JSON,
// everything else gets text. The first call wins.
func Init(level, environment string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(level)}

		if environment == "production" {
			logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
		}

		slog.SetDefault(logger)
	})
}

// L returns the global logger, initializing defaults if Init was never
// called.
func L() *slog.Logger {
	if logger == nil {
		Init("info", "")
	}
	return logger
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
