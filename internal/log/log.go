// Package log provides the engine's shared logger.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package-wide logger instance.
// It uses a no-op logger by default; hosts embedding the engine may call
// SetLogger before constructing an engine.Engine to receive diagnostics.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger overrides the package logger. Every later Logger() call
// returns l; a *zap.Logger that a component obtained from Logger() earlier
// is not replaced.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}

// debug gates Debugf; enable with SetDebug(true).
var debug = false

// SetDebug toggles verbose debug logging for allocator/GC internals.
func SetDebug(on bool) {
	debug = on
}

func Debugf(format string, args ...any) {
	if debug {
		Logger().Sugar().Debugf(format, args...)
	}
}
