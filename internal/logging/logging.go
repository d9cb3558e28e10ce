package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogctx "github.com/veqryn/slog-context"
)

// ParseLevel maps a textual level to slog, falling back to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New creates a JSON logger writing to stdout and makes it the default.
// Attributes added with slogctx.With are included in every record.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})

	log := slog.New(slogctx.NewHandler(h, nil))
	slog.SetDefault(log)
	return log
}
