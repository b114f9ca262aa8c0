// Package logger builds the slog loggers used across rol.
package logger

import (
	"io"
	"log/slog"
)

// LevelFromString maps a configured level name to a slog.Level. Unknown
// names map to error.
func LevelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// New returns a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: false,
		Level:     LevelFromString(level),
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }
