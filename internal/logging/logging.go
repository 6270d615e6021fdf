package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process-wide *slog.Logger and installs it as the
// default. Unknown level strings fall back to info.
func Setup(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
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
