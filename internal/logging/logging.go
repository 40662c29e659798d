// Package logging provides the package-level structured logger used across
// patterncache. It follows the same shape as AgentSmith-HUB's logger
// package: a process-wide *slog.Logger backed by a rotating JSON file
// handler, with free functions instead of threading a logger value through
// every call site.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu sync.RWMutex
	l  = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// FileConfig configures the rotating log file. A zero value disables
// rotation and logs to stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      slog.Level
}

// Init installs the process-wide logger. Safe to call once at process
// start; subsequent calls replace the logger (used by tests).
func Init(cfg FileConfig) *slog.Logger {
	var handler slog.Handler
	if cfg.Path == "" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		writer := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxBackups: nonZero(cfg.MaxBackups, 10),
			MaxAge:     nonZero(cfg.MaxAgeDays, 15),
			Compress:   cfg.Compress,
		}
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Level, AddSource: true})
	}

	logger := slog.New(handler).With("service", "patterncache")

	mu.Lock()
	l = logger
	mu.Unlock()

	slog.SetDefault(logger)
	return logger
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return l
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) { current().DebugContext(ctx, msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { current().InfoContext(ctx, msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { current().WarnContext(ctx, msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { current().ErrorContext(ctx, msg, args...) }
