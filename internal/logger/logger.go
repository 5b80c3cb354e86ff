// Package logger provides the structured logging facade every other
// watch-tower package logs through.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var defaultLogger atomic.Pointer[Logger]

// Logger wraps zap.SugaredLogger so call sites get both structured
// (key/value) and printf-style logging from one type.
type Logger struct {
	*zap.SugaredLogger
}

// New creates a logger at the given level. level is one of
// "debug"|"info"|"warn"|"error". development mode switches to a
// console encoder with colored levels and enables stack traces.
func New(level string, development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Useful in tests and
// as the base of a --silent run.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithComponent returns a child logger carrying a "component" field,
// the convention every watch-tower package logs under.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{SugaredLogger: l.With("component", component)}
}

// WithChain returns a child logger carrying a "chain" field.
func (l *Logger) WithChain(network string) *Logger {
	return &Logger{SugaredLogger: l.With("chain", network)}
}

// Close flushes buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

// Default returns the process-wide fallback logger, lazily built at
// debug/development settings the first time it's needed.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l, err := New("debug", true)
	if err != nil {
		panic(err)
	}
	defaultLogger.Store(l)
	return defaultLogger.Load()
}
