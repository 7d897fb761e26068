// Package answerer provides the downstream question answerers behind POST /query.
package answerer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"corridor/internal/query/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

// MethodLocal marks answers produced without a language model.
const MethodLocal = "local"

// Local answers without calling out. It is used when no answering service is
// configured.
type Local struct{}

func (Local) Answer(_ context.Context, question string) (models.Answer, error) {
	return models.Answer{
		Text:   "No answering service is configured for this environment.",
		Method: MethodLocal,
	}, nil
}

// HTTP forwards questions to an answering service as JSON and expects a
// models.Answer back.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP creates an HTTP answerer. timeout bounds the whole call.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{url: url, client: &http.Client{Timeout: timeout}}
}

func (a *HTTP) Answer(ctx context.Context, question string) (models.Answer, error) {
	body, err := json.Marshal(models.Request{Question: question})
	if err != nil {
		return models.Answer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode question")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return models.Answer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build answer request")
	}
	req.Header.Set("Content-Type", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set(tracecontext.HeaderRequestID, id)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return models.Answer{}, dErrors.Wrap(err, dErrors.CodeInternal, "answering service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.Answer{}, dErrors.Wrap(fmt.Errorf("status %d", resp.StatusCode), dErrors.CodeInternal, "answering service failed")
	}
	var out models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Answer{}, dErrors.Wrap(err, dErrors.CodeInternal, "invalid answer payload")
	}
	return out, nil
}
