package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"corridor/internal/audit"
	"corridor/internal/users/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/platform/middleware/auth"
	"corridor/pkg/requestcontext"
)

// Service defines the user operations the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, req models.CreateUserRequest) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, id string, req models.UpdateUserRequest) (models.User, []string, error)
	Delete(ctx context.Context, id string) error
}

// Auditor records completed user operations.
type Auditor interface {
	Created(ctx context.Context, meta audit.Meta, subjectID string, data map[string]any)
	Read(ctx context.Context, meta audit.Meta, subjectID string, data map[string]any)
	Modified(ctx context.Context, meta audit.Meta, subjectID string, data map[string]any)
	Deleted(ctx context.Context, meta audit.Meta, subjectID string, data map[string]any)
	Error(ctx context.Context, meta audit.Meta, subjectID string, err error)
}

// Handler serves /users. Callers must mount it behind authentication.
type Handler struct {
	users   Service
	auditor Auditor
	logger  *slog.Logger
}

func New(users Service, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{users: users, auditor: auditor, logger: logger}
}

// Register registers the user routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.With(auth.RequireRole(models.AdminRole, h.logger)).Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	meta := audit.MetaFromRequest(r)

	var req models.CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, meta, start, "", err)
		return
	}
	u, err := h.users.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, meta, start, "", err)
		return
	}

	h.auditor.Created(ctx, meta.WithStatus(http.StatusCreated, start), u.ID, map[string]any{
		"email":     u.Email,
		"firstName": u.FirstName,
	})
	httputil.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	meta := audit.MetaFromRequest(r)
	id := chi.URLParam(r, "id")

	u, err := h.users.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, meta, start, id, err)
		return
	}

	h.auditor.Read(ctx, meta.WithStatus(http.StatusOK, start), u.ID, map[string]any{
		"readBy": requestcontext.SubjectID(ctx),
	})
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	meta := audit.MetaFromRequest(r)
	id := chi.URLParam(r, "id")

	var req models.UpdateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, meta, start, id, err)
		return
	}
	u, fields, err := h.users.Update(ctx, id, req)
	if err != nil {
		h.fail(ctx, w, meta, start, id, err)
		return
	}

	h.auditor.Modified(ctx, meta.WithStatus(http.StatusOK, start), u.ID, map[string]any{"updates": fields})
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	meta := audit.MetaFromRequest(r)
	id := chi.URLParam(r, "id")

	if err := h.users.Delete(ctx, id); err != nil {
		h.fail(ctx, w, meta, start, id, err)
		return
	}

	h.auditor.Deleted(ctx, meta.WithStatus(http.StatusNoContent, start), id, map[string]any{
		"deletedBy": requestcontext.SubjectID(ctx),
	})
	w.WriteHeader(http.StatusNoContent)
}

// fail audits and writes err. Not-found is a client error and is not audited.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, meta audit.Meta, start time.Time, subjectID string, err error) {
	requestID := requestcontext.RequestID(ctx)
	code := dErrors.CodeOf(err)
	meta = meta.WithStatus(httputil.StatusFor(code), start)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "user operation failed",
			"endpoint", meta.Endpoint,
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	if code != dErrors.CodeNotFound {
		h.auditor.Error(ctx, meta, subjectID, err)
	}
	httputil.WriteErrorWithRequestID(w, err, requestID)
}
