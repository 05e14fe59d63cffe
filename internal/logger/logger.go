// Package logger builds the application slog logger.
package logger

import (
	"io"
	"strings"

	"golang.org/x/exp/slog"
)

// New creates a logger writing to out at the given level ("debug", "info",
// "warn", "error"). An unknown level falls back to info. When json is true a
// JSON handler is used, otherwise a text handler.
func New(out io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
