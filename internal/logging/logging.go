// Package logging sets up the process-wide structured logger every other
// package pulls component-scoped children from. The teacher never
// centralizes this — every package calls slog.Default().With(...) and
// relies on whatever handler main() installed — so this package supplies
// exactly that installation step, generalized into one place instead of
// main.go hand-rolling it.
package logging

import (
	"log/slog"
	"os"
)

// Config controls the installed slog handler.
type Config struct {
	// Level is one of "debug", "info", "warn", "error"; defaults to "info".
	Level string
	// JSON selects a JSON handler (production) over a text handler (local
	// development); defaults to false.
	JSON bool
}

// Init installs a handler on slog's default logger matching cfg and
// returns the root logger, so callers that want the base (rather than
// slog.Default()) have it without a second lookup.
func Init(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
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

// For is a component-scoped child of the process logger, the same
// "component" key every package already uses when falling back to
// slog.Default().With("component", ...).
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
