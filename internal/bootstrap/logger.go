// Package bootstrap holds startup helpers shared by the server and worker
// binaries.
package bootstrap

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger builds the process logger and installs it as the slog default.
// Development gets colorized output; everything else logs JSON at the
// configured level.
func InitLogger(env, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	var logger *slog.Logger
	if env == "development" {
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: lvl,
		}))
	}

	slog.SetDefault(logger)
	return logger
}
