// Package logging builds the run's single *slog.Logger: a console sink
// plus an optional rotating file sink, grounded on the dual-writer pattern
// in bbak-mcs-mcp/internal/logging adapted from zerolog to log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *slog.Logger at level, writing to stderr and, if logFile is
// non-empty, also to a lumberjack-rotated file at that path. The console
// sink uses a TextHandler when stderr is a real terminal and a JSONHandler
// otherwise, so a local run stays readable while a piped/production run
// still emits structured records.
func New(level slog.Level, logFile string) *slog.Logger {
	var writer io.Writer = os.Stderr
	consoleIsTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	if logFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    64, // megabytes
			MaxBackups: 5,
			MaxAge:     90, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, fileWriter)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if consoleIsTTY {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps the four recognized config levels onto slog.Level.
func ParseLevel(raw string) slog.Level {
	switch raw {
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
