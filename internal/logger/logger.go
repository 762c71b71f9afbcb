// Package logger provides a global zerolog logger for the engine and CLI.
package logger

import (
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global zerolog logger instance.
	Logger zerolog.Logger
)

// InitLogger initializes the global logger with the specified log level.
func InitLogger(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
}

// SlogAdapter returns an *slog.Logger for third-party clients that only accept
// the standard slog interface. It writes JSON to stderr through slog's own
// handler (not through zerolog), at debug level when the global zerolog level
// is debug or lower and at info level otherwise.
func SlogAdapter() *slog.Logger {
	level := slog.LevelInfo
	if Logger.GetLevel() <= zerolog.DebugLevel {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
