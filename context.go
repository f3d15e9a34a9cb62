package xsurface

import (
	"context"

	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xsurface (prevents collisions).
type ctxKey string

const (
	busCtxKey    ctxKey = "xsurface:bus"
	loggerCtxKey ctxKey = "xsurface:logger"
)

// WithBus attaches the application bus to ctx. Components that need to
// publish pull it from here instead of a process-wide global.
func WithBus(ctx context.Context, b *Bus) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, busCtxKey, b)
}

// BusFromContext retrieves a Bus previously attached with WithBus.
func BusFromContext(ctx context.Context) (*Bus, bool) {
	if v := ctx.Value(busCtxKey); v != nil {
		if b, ok := v.(*Bus); ok && b != nil {
			return b, true
		}
	}
	return nil, false
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext retrieves a logger previously attached with WithLogger.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}
