// Package logging builds the zap-backed logr loggers used across the hub.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"context"
)

// Verbosity levels for logger.V(...).
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger returns a logger printing messages up to the given verbosity.
// Development mode switches to the human readable console encoder.
func NewLogger(development bool, verbosity int) (logr.Logger, error) {
	var cfg uberzap.Config
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		cfg.Sampling = nil
	}
	// logr verbosity v maps to zap level -v
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))
	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger creates a development logger printing everything.
func NewTestLogger() logr.Logger {
	logger, err := NewLogger(true, TRACE)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback logr.Logger) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return fallback
}

// IntoContext stores logger in ctx.
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}
