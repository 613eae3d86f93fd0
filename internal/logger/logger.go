package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Development mode uses console encoding.
func New(debugMode, development bool) (*zap.Logger, error) {
	if development {
		return NewDevelopmentLogger(debugMode)
	}
	return NewProductionLogger(debugMode)
}

// NewProductionLogger builds a JSON logger with ISO8601 timestamps and short callers.
// Stack traces are attached from error level up.
func NewProductionLogger(debugMode bool) (*zap.Logger, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.SecondsDurationEncoder

	cfg := zap.NewProductionConfig()
	cfg.Level = levelFor(debugMode)
	cfg.EncoderConfig = enc
	return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewDevelopmentLogger creates a development logger with console encoding (for local dev)
func NewDevelopmentLogger(debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = levelFor(debugMode)
	return config.Build()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes buffered entries; nil loggers are ignored.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

func levelFor(debugMode bool) zap.AtomicLevel {
	lvl := zapcore.InfoLevel
	if debugMode {
		lvl = zapcore.DebugLevel
	}
	return zap.NewAtomicLevelAt(lvl)
}
