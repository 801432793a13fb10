package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// InitializeLogger builds a colored stdout logger at the given level and
// makes it the package-wide logger returned by GetLogger.
func InitializeLogger(level string) *slog.Logger {
	l := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: ParseLevel(level)}))

	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// GetLogger returns the package-wide logger, creating an info level one on
// first use.
func GetLogger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return InitializeLogger("info")
}

// orDefault is used by the helpers below, which accept a nil logger.
func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}
