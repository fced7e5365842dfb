// Package logx provides the core's structured logger: a thin package-level
// wrapper around zerolog so call sites stay terse (logx.Debug().Uint64(...))
// while still letting the harness point every core at one shared sink.
package logx

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(defaultWriter()).With().Timestamp().Logger()
)

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
}

// SetDefault replaces the package logger, e.g. to redirect a core's trace
// output to a file or to raise the level for a quiet batch run.
func SetDefault(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetLevel adjusts the minimum emitted level across the package logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug() *zerolog.Event { l := current(); return l.Debug() }
func Info() *zerolog.Event  { l := current(); return l.Info() }
func Warn() *zerolog.Event  { l := current(); return l.Warn() }
func Error() *zerolog.Event { l := current(); return l.Error() }

// WithCore returns a child logger tagged with a core id, used by the
// multi-core harness so per-core trace lines can be filtered.
func WithCore(coreID int) zerolog.Logger {
	return current().With().Int("core", coreID).Logger()
}
