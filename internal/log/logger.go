// Package log configures structured logging for the ledger binaries
// and defines the field and component naming conventions used in
// slog calls across the codebase.
package log

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a colored slog handler at the level given by the
// LOG_LEVEL env var (debug, info, warn, error; default info).
func Setup() {
	SetupWithLevel(levelFromEnv())
}

// SetupWithLevel installs a colored slog handler at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

// With returns the default logger tagged with a component name.
func With(component string) *slog.Logger {
	return slog.Default().With(FieldComponent, component)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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
