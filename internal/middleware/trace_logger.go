package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// loggerKey is the context key for the logger
type loggerKey struct{}

// WithTraceLogger returns middleware that stores a request-scoped logger in
// the context, tagged with trace and span IDs when the request is traced.
func WithTraceLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := withSpan(logger, trace.SpanFromContext(r.Context()))
			if l != logger {
				r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, l))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggerFromContext retrieves the logger from context.
// If none was stored, the fallback is returned, tagged with the active span if any.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return withSpan(fallback, trace.SpanFromContext(ctx))
}

// LoggerFromRequest is LoggerFromContext for a request, additionally tagged
// with the authenticated caller id.
func LoggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	l := LoggerFromContext(r.Context(), fallback)
	if c := CallerFromContext(r.Context()); c.Authenticated() {
		l = l.With(zap.String("caller_id", c.ID))
	}
	return l
}

func withSpan(logger *zap.Logger, span trace.Span) *zap.Logger {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
