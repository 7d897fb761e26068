package testutil

import (
	"net/http"

	"corridor/pkg/domain"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

// WithPrincipal attaches an authenticated principal to the request, simulating
// what the auth middleware does for a valid token.
func WithPrincipal(req *http.Request, subjectID string, roles ...string) *http.Request {
	p := &domain.Principal{SubjectID: subjectID, Roles: roles}
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// WithTrace attaches a trace context, simulating the correlation middleware.
func WithTrace(req *http.Request, traceID string) *http.Request {
	tc := tracecontext.TraceContext{TraceID: traceID, OriginService: "test"}
	return req.WithContext(requestcontext.WithTrace(req.Context(), tc))
}

// WithClient attaches client IP and User-Agent.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
