package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"corridor/internal/audit"
	"corridor/internal/query/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/requestcontext"
)

// Answerer answers a natural-language question. Implementations are
// typically slow and metered.
type Answerer interface {
	Answer(ctx context.Context, question string) (models.Answer, error)
}

// Auditor records answered and failed questions.
type Auditor interface {
	RAGQuery(ctx context.Context, meta audit.Meta, subjectID, question, answer, method string)
	Error(ctx context.Context, meta audit.Meta, subjectID string, err error)
}

// Handler serves POST /query. Callers mount it behind authentication and the
// cost policy.
type Handler struct {
	answerer Answerer
	auditor  Auditor
	logger   *slog.Logger
}

func New(answerer Answerer, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{answerer: answerer, auditor: auditor, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/query", h.handleQuery)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	meta := audit.MetaFromRequest(r)
	subject := requestcontext.SubjectID(ctx)
	requestID := requestcontext.RequestID(ctx)

	var req models.Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}

	ans, err := h.answerer.Answer(ctx, req.Question)
	if err != nil {
		h.logger.ErrorContext(ctx, "query answering failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		h.auditor.Error(ctx, meta.WithStatus(httputil.StatusFor(dErrors.CodeOf(err)), start), subject, err)
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}

	h.auditor.RAGQuery(ctx, meta.WithStatus(http.StatusOK, start), subject, req.Question, ans.Text, ans.Method)
	httputil.WriteJSON(w, http.StatusOK, models.Response{
		Question: req.Question,
		Answer:   ans.Text,
		Method:   ans.Method,
	})
}
