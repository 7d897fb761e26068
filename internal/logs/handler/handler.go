package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"corridor/internal/logs/models"
	dErrors "corridor/pkg/domain-errors"
	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/platform/middleware/auth"
	request "corridor/pkg/platform/middleware/request"
	"corridor/pkg/platform/middleware/servicetoken"
	pstrings "corridor/pkg/platform/strings"
)

// Service defines the log operations the HTTP layer needs.
type Service interface {
	Ingest(ctx context.Context, record audit.Record) (audit.Record, error)
	Search(ctx context.Context, q models.Query) ([]audit.Record, error)
	ByUser(ctx context.Context, userID string) ([]audit.Record, error)
	ByRequest(ctx context.Context, requestID string) ([]audit.Record, error)
	Errors(ctx context.Context, limit int, since time.Time) ([]audit.Record, error)
}

// Handler serves /log.
type Handler struct {
	logs        Service
	logger      *slog.Logger
	validator   auth.ClaimsValidator
	ingestToken string
}

// New creates a log Handler. Query routes require a bearer token checked by
// validator; ingestion is open unless ingestToken is set.
func New(logs Service, logger *slog.Logger, validator auth.ClaimsValidator, ingestToken string) *Handler {
	return &Handler{logs: logs, logger: logger, validator: validator, ingestToken: ingestToken}
}

// Register registers the log routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/log", func(r chi.Router) {
		r.With(servicetoken.Require(h.ingestToken, h.logger)).Post("/", h.handleIngest)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.validator, h.logger))
			r.Get("/", h.handleSearch)
			r.Get("/user/{id}", h.handleByUser)
			r.Get("/request/{requestId}", h.handleByRequest)
			r.Get("/errors", h.handleErrors)
		})
	})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var rec audit.Record
	if err := httputil.DecodeJSON(r, &rec); err != nil {
		h.logger.WarnContext(ctx, "invalid audit record body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}

	stored, err := h.logs.Ingest(ctx, rec)
	if err != nil {
		h.fail(ctx, w, "failed to ingest audit record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.IngestResponse{Message: "log created", Log: stored})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteErrorWithRequestID(w, err, request.GetRequestID(ctx))
		return
	}
	records, err := h.logs.Search(ctx, q)
	if err != nil {
		h.fail(ctx, w, "failed to search audit records", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Count: len(records), Logs: records})
}

func (h *Handler) handleByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")
	records, err := h.logs.ByUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "failed to list user audit records", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.UserLogsResponse{UserID: userID, Count: len(records), Logs: records})
}

func (h *Handler) handleByRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "requestId")
	records, err := h.logs.ByRequest(ctx, requestID)
	if err != nil {
		h.fail(ctx, w, "failed to list request audit records", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.RequestLogsResponse{RequestID: requestID, Count: len(records), Logs: records})
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	limit := models.DefaultErrorsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteErrorWithRequestID(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"), requestID)
			return
		}
		limit = n
	}
	since, err := parseDate(r.URL.Query().Get("dateFrom"), false)
	if err != nil {
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}

	records, err := h.logs.Errors(ctx, limit, since)
	if err != nil {
		h.fail(ctx, w, "failed to list error audit records", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ErrorsResponse{Count: len(records), Errors: records})
}

// fail logs internal errors and writes err; client errors are written as-is.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := request.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	httputil.WriteErrorWithRequestID(w, err, requestID)
}

func parseQuery(r *http.Request) (models.Query, error) {
	v := r.URL.Query()
	q := models.Query{
		UserID:      v.Get("id"),
		IDType:      audit.IDType(v.Get("idType")),
		Action:      audit.Action(v.Get("action")),
		ServiceName: v.Get("serviceName"),
	}
	// severity accepts a comma-separated list.
	for _, sev := range pstrings.SplitListLower(v.Get("severity")) {
		q.Severities = append(q.Severities, audit.Severity(sev))
	}
	var err error
	if q.From, err = parseDate(v.Get("dateFrom"), false); err != nil {
		return models.Query{}, err
	}
	if q.To, err = parseDate(v.Get("dateTo"), true); err != nil {
		return models.Query{}, err
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return models.Query{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		q.Limit = n
	}
	return q, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain dateTo covers
// the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "dates must be YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
