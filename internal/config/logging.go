package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger. Without a log file it writes JSON to
// stdout. With one it fans out: text to stdout for humans and JSON to the
// file for machine parsing. Returns the logger and a cleanup function.
func SetupLogger(cfg LogConfig) (*slog.Logger, func() error) {
	level := ParseLogLevel(cfg.Level)

	if cfg.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), func() error { return nil }
	}

	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Fall back to stdout-only if file fails
		slog.Error("failed to open log file, using stdout only", "error", err, "file", cfg.File)
		return slog.New(stdoutHandler), func() error { return nil }
	}

	logger := SetupLoggerWithWriters(os.Stdout, file, level)
	return logger, file.Close
}

// SetupLoggerWithWriters creates a fanout logger with custom writers (for testing).
func SetupLoggerWithWriters(stdout, file io.Writer, level slog.Level) *slog.Logger {
	stdoutHandler := slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stdoutHandler, fileHandler))
}

// ParseLogLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLogLevel(s string) slog.Level {
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
