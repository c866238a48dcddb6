package logctx

import (
	"context"

	"go.uber.org/zap"
)

type traceIDKey struct{}

// WithTraceID returns a context carrying the request's trace id for the
// service layer and audit rows to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromCtx returns the request's trace id, or "" outside a request.
func TraceIDFromCtx(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	if id, ok := ctx.Value("traceID").(string); ok {
		return id
	}
	return ""
}

// FromCtx returns the logger carried by ctx when one is set; otherwise it
// enriches base with the trace_id and user_id context values so service-layer
// logs correlate with the request even off the gin path (webhook processing,
// background writes).
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value("logger").(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid := TraceIDFromCtx(ctx); tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if uid, ok := ctx.Value("user_id").(string); ok && uid != "" {
		fields = append(fields, "user_id", uid)
	}
	if len(fields) > 0 && base != nil {
		return base.With(fields...)
	}
	return base
}
