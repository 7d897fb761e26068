package answerer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridor/internal/query/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

func TestHTTP_Answer(t *testing.T) {
	var gotQuestion, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotQuestion = req.Question
		gotRequestID = r.Header.Get(tracecontext.HeaderRequestID)
		_ = json.NewEncoder(w).Encode(models.Answer{Text: "42 users", Method: "llm"})
	}))
	defer srv.Close()

	ctx := requestcontext.WithTrace(context.Background(), tracecontext.TraceContext{TraceID: "trace-9"})
	ans, err := NewHTTP(srv.URL, time.Second).Answer(ctx, "how many users?")

	require.NoError(t, err)
	assert.Equal(t, models.Answer{Text: "42 users", Method: "llm"}, ans)
	assert.Equal(t, "how many users?", gotQuestion)
	assert.Equal(t, "trace-9", gotRequestID)
}

func TestHTTP_AnswerFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTP(srv.URL, time.Second).Answer(context.Background(), "q")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		_, err := NewHTTP(srv.URL, 20*time.Millisecond).Answer(context.Background(), "q")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestLocal_Answer(t *testing.T) {
	ans, err := Local{}.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, MethodLocal, ans.Method)
	assert.NotEmpty(t, ans.Text)
}
