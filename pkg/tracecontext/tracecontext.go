// Package tracecontext creates and propagates the per-request trace identifier
// that ties HTTP requests, bus events and audit records together.
//
// The trace ID travels in the X-Request-ID header. When a caller sends only a
// W3C traceparent, its trace ID is adopted instead of minting a new one, and
// outbound bus messages carry a traceparent derived from the trace ID whenever
// it has W3C shape.
package tracecontext

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HeaderRequestID carries the trace ID on requests and responses.
const HeaderRequestID = "X-Request-ID"

// maxTraceIDLength bounds accepted inbound IDs so they are safe to log and index.
const maxTraceIDLength = 128

// TraceContext is immutable and passed by value.
type TraceContext struct {
	TraceID       string `json:"traceId"`
	OriginService string `json:"originService"`
}

// IsZero reports whether no trace ID was ever assigned.
func (t TraceContext) IsZero() bool { return t.TraceID == "" }

var propagator = propagation.TraceContext{}

// New reuses inbound when it is well formed and otherwise generates a fresh ID.
func New(inbound, originService string) TraceContext {
	inbound = strings.TrimSpace(inbound)
	if !WellFormed(inbound) {
		inbound = uuid.NewString()
	}
	return TraceContext{TraceID: inbound, OriginService: originService}
}

// FromHeaders prefers X-Request-ID, then a valid traceparent, then a new ID.
func FromHeaders(h http.Header, originService string) TraceContext {
	if v := strings.TrimSpace(h.Get(HeaderRequestID)); WellFormed(v) {
		return TraceContext{TraceID: v, OriginService: originService}
	}
	sc := trace.SpanContextFromContext(propagator.Extract(context.Background(), propagation.HeaderCarrier(h)))
	if sc.IsValid() {
		return TraceContext{TraceID: sc.TraceID().String(), OriginService: originService}
	}
	return New("", originService)
}

// WellFormed accepts 1-128 characters drawn from letters, digits and ._:-
func WellFormed(v string) bool {
	if v == "" || len(v) > maxTraceIDLength {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// W3CTraceID converts the trace ID to an OpenTelemetry trace ID when it is a
// UUID or 32 hex characters.
func (t TraceContext) W3CTraceID() (trace.TraceID, bool) {
	hex := strings.ToLower(strings.ReplaceAll(t.TraceID, "-", ""))
	if len(hex) != 32 {
		return trace.TraceID{}, false
	}
	id, err := trace.TraceIDFromHex(hex)
	if err != nil {
		return trace.TraceID{}, false
	}
	return id, true
}

// Inject writes a traceparent for t into carrier. It is a no-op when the trace
// ID has no W3C form.
func (t TraceContext) Inject(carrier map[string]string) {
	tid, ok := t.W3CTraceID()
	if !ok {
		return
	}
	var sid trace.SpanID
	u := uuid.New()
	copy(sid[:], u[:8])
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	propagator.Inject(trace.ContextWithSpanContext(context.Background(), sc), propagation.MapCarrier(carrier))
}

// ExtractTraceID reads a traceparent from carrier.
func ExtractTraceID(carrier map[string]string) (string, bool) {
	sc := trace.SpanContextFromContext(propagator.Extract(context.Background(), propagation.MapCarrier(carrier)))
	if !sc.IsValid() {
		return "", false
	}
	return sc.TraceID().String(), true
}
