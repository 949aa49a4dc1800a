package logx

import (
	"context"

	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

type contextKey int

const connKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConn annotates the logger with the connection id if present.
func WithConn(ctx context.Context, connID schema.ConnID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if connID != "" {
		if current, ok := ctx.Value(connKey).(schema.ConnID); ok && current == connID {
			return log
		}
		log = log.With("conn", connID)
	}
	return log
}

// WithPath annotates the logger with a workspace path when available.
func WithPath(ctx context.Context, path string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if path != "" {
		log = log.With("path", path)
	}
	return log
}

// ContextWithConn stores the connection marker on the context for log de-duplication.
func ContextWithConn(ctx context.Context, connID schema.ConnID) context.Context {
	if ctx == nil || connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connKey, connID)
}

// ContextWithConnLogger attaches the logger and connection marker to the context.
func ContextWithConnLogger(ctx context.Context, log pslog.Logger, connID schema.ConnID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConn(ctx, connID)
}
