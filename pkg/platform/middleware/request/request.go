// Package request provides the first middleware every inbound request passes:
// it assigns the trace context and pins the request-scoped clock.
package request

import (
	"context"
	"net/http"
	"time"

	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

// Correlation attaches a trace context built from X-Request-ID (or traceparent)
// and echoes the trace ID on the response before the handler runs, so even
// rejected requests carry it.
func Correlation(originService string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tracecontext.FromHeaders(r.Header, originService)
			w.Header().Set(tracecontext.HeaderRequestID, tc.TraceID)
			ctx := requestcontext.WithTrace(r.Context(), tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Time captures the current time at the start of the request so every
// timestamp produced while serving it agrees.
func Time(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the trace ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
