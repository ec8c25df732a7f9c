package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. Development gets readable
// text output at debug level; everything else ships JSON at info so
// log aggregation can parse it.
func NewLogger(env string) *slog.Logger {
	if env == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
