package authsvc

import (
	"context"
	"log/slog"
)

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. Engine log lines carry it
// as request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the id set by [WithRequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func (e *Engine) logAttrs(ctx context.Context, operation string, attrs ...any) []any {
	out := make([]any, 0, len(attrs)+6)
	out = append(out, "module", "authsvc", "operation", operation)
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		out = append(out, "request_id", requestID)
	}
	return append(out, attrs...)
}

func (e *Engine) logError(ctx context.Context, operation, msg string, err error, attrs ...any) {
	attrs = append(attrs, "outcome", "failure", "error", err)
	e.logger.ErrorContext(ctx, msg, e.logAttrs(ctx, operation, attrs...)...)
}

func (e *Engine) logWarn(ctx context.Context, operation, msg string, attrs ...any) {
	e.logger.WarnContext(ctx, msg, e.logAttrs(ctx, operation, attrs...)...)
}

func (e *Engine) logDebug(ctx context.Context, operation, msg string, attrs ...any) {
	if !e.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	e.logger.DebugContext(ctx, msg, e.logAttrs(ctx, operation, attrs...)...)
}
