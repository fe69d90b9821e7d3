package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger on stdout.
func NewLogger(env, level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env, level)
}

// NewLoggerTo writes text in development and JSON everywhere else, so log
// shippers never see the human format.
func NewLoggerTo(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: LogLevel(env, level)}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "estateflow", "env", env)
}

// LogLevel resolves LOG_LEVEL. An empty or unknown value falls back to debug
// in development and info elsewhere.
func LogLevel(env, level string) slog.Level {
	var l slog.Level
	if level != "" && l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))) == nil {
		return l
	}
	if env == "development" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
