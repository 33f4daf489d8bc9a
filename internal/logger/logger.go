// Package logger sets up process-wide structured logging over a rotating
// file, in the style of the project's other daemons.
package logger

import (
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.Mutex
	cur *slog.Logger
)

// Options controls rotation and verbosity.
type Options struct {
	Path       string // log file path; empty means stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
}

// Init installs the process-wide logger and returns it. Safe to call once
// at startup; later calls replace the global.
func Init(opts Options) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var w = os.Stderr
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: true}

	var l *slog.Logger
	if opts.Path != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    nonZero(opts.MaxSizeMB, 100),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		l = slog.New(slog.NewJSONHandler(rot, handlerOpts))
	} else {
		l = slog.New(slog.NewJSONHandler(w, handlerOpts))
	}

	cur = l
	slog.SetDefault(l)
	return l
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// L returns the current process-wide logger, falling back to a bare
// stderr logger if Init was never called.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if cur == nil {
		cur = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return cur
}

// With returns a child logger with the given node-id field attached,
// mirroring the per-component child loggers used across the cluster code.
func With(component string, nodeID string) *slog.Logger {
	return L().With("component", component, "node", nodeID)
}
