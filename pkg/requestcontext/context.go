// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and side channels (bus publisher,
// audit emitter) read them without importing net/http.
//
//	trace := requestcontext.Trace(ctx)
//	principal := requestcontext.Principal(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"

	"corridor/pkg/domain"
	"corridor/pkg/tracecontext"
)

// Context key types (unexported for encapsulation).
type (
	traceKey       struct{}
	principalKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyTrace       = traceKey{}
	ContextKeyPrincipal   = principalKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Correlation
// -----------------------------------------------------------------------------

// Trace retrieves the trace context. Returns the zero value if not set.
func Trace(ctx context.Context) tracecontext.TraceContext {
	if tc, ok := ctx.Value(ContextKeyTrace).(tracecontext.TraceContext); ok {
		return tc
	}
	return tracecontext.TraceContext{}
}

// WithTrace injects a trace context.
func WithTrace(ctx context.Context, tc tracecontext.TraceContext) context.Context {
	return context.WithValue(ctx, ContextKeyTrace, tc)
}

// RequestID is the trace ID of the current request, or "".
func RequestID(ctx context.Context) string {
	return Trace(ctx).TraceID
}

// -----------------------------------------------------------------------------
// Principal
// -----------------------------------------------------------------------------

// Principal retrieves the authenticated principal, or nil for anonymous requests.
func Principal(ctx context.Context) *domain.Principal {
	if p, ok := ctx.Value(ContextKeyPrincipal).(*domain.Principal); ok {
		return p
	}
	return nil
}

// WithPrincipal attaches a validated principal.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// SubjectID is the principal's subject, or "" when anonymous.
func SubjectID(ctx context.Context) string {
	if p := Principal(ctx); p != nil {
		return p.SubjectID
	}
	return ""
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (consumer loops, background deliveries, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
