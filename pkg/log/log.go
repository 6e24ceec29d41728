// Package log configures the process wide slog logger.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing text, or JSON when format is "json", to w.
func New(w io.Writer, logLevel, format string) *slog.Logger {
	options := &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}

	return slog.New(slog.NewTextHandler(w, options))
}

// Setup installs the default logger, writing to stderr.
func Setup(logLevel, format string) {
	slog.SetDefault(New(os.Stderr, logLevel, format))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
