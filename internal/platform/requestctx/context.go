// Package requestctx carries request-scoped values shared by middleware, handlers and services.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/hossain-rashid/Smartshop/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/hossain-rashid/Smartshop/internal/platform/requestctx/trace"
	clientContextKey contextKey = "github.com/hossain-rashid/Smartshop/internal/platform/requestctx/client"
)

// AnonymousClient identifies callers that did not send a client header.
const AnonymousClient = "anonymous"

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithClientID records the calling client. Blank identifiers are stored as AnonymousClient.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = AnonymousClient
	}
	return context.WithValue(ctx, clientContextKey, clientID)
}

// ClientID returns the calling client, defaulting to AnonymousClient.
func ClientID(ctx context.Context) string {
	if ctx == nil {
		return AnonymousClient
	}
	if id, ok := ctx.Value(clientContextKey).(string); ok && id != "" {
		return id
	}
	return AnonymousClient
}
