// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Options configures the logger.
type Options struct {
	Debug  bool      // log debug messages
	Quiet  bool      // only errors
	JSON   bool      // JSON lines instead of key=value text
	Output io.Writer // default stderr
}

// Init replaces the logger according to opts. Quiet wins over Debug.
func Init(opts Options) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	if opts.Quiet {
		level = slog.LevelError
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(out, hopts)
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	}
	Set(slog.New(h))
}

// Set installs l as the process logger.
func Set(l *slog.Logger) {
	mu.Lock()
	current = l
	mu.Unlock()
}

// Get returns the process logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// With returns the process logger with attrs attached.
func With(args ...any) *slog.Logger { return Get().With(args...) }
