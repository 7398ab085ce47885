// Package logging provides the JSON logger shared by every component.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger embeds slog.Logger; the wrapper owns level parsing and the
// per-component tagging convention.
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger writing to stdout. Unknown level names fall back
// to info.
func New(level string) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger for callers wired without config.
func Default() *Logger {
	return New("info")
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
