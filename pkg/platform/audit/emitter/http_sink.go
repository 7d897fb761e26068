package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	dErrors "corridor/pkg/domain-errors"
	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/middleware/servicetoken"
	"corridor/pkg/tracecontext"
)

// HTTPSink posts records as JSON to {baseURL}/log.
type HTTPSink struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSink targets baseURL, the log service root.
func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	baseURL = strings.TrimRight(baseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPSink{endpoint: baseURL + "/log", client: client}
}

// WithToken returns a copy of s that authenticates with token.
func (s *HTTPSink) WithToken(token string) *HTTPSink {
	c := *s
	c.token = token
	return &c
}

func (s *HTTPSink) Deliver(ctx context.Context, record audit.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditDeliveryFailed, "encode audit record")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditDeliveryFailed, "build audit request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set(servicetoken.Header, s.token)
	}
	if record.RequestID != "" {
		req.Header.Set(tracecontext.HeaderRequestID, record.RequestID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditDeliveryFailed, "post audit record")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dErrors.New(dErrors.CodeAuditDeliveryFailed,
			fmt.Sprintf("log service responded %d", resp.StatusCode))
	}
	return nil
}
