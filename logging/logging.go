// Package logging builds the operator-facing slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, format and destination.
type Config struct {
	Level  string
	Format string // json or text
	Output string // stdout, stderr, or file path

	// Writer overrides Output when set.
	Writer io.Writer
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a logger for cfg. An Output file that cannot be opened falls
// back to stderr.
func New(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)

	output := cfg.Writer
	if output == nil {
		switch cfg.Output {
		case "stderr", "":
			output = os.Stderr
		case "stdout":
			output = os.Stdout
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				output = os.Stderr
			} else {
				output = f
			}
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler).With(slog.String("component", "repairagent"))
}
