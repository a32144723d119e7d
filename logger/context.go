package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerContextKey struct{}

// NewContextWithLogger returns a new context with log added.
func NewContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext returns the zap.Logger associated with ctx, falling back to
// fallback when no logger has been assigned.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, _ := ctx.Value(loggerContextKey{}).(*zap.Logger); l != nil {
		return l
	}
	return fallback
}
