package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"corridor/internal/audit"
	"corridor/pkg/domain"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/platform/middleware/auth"
	"corridor/pkg/requestcontext"
)

// AuthAuditor records sign-in outcomes.
type AuthAuditor interface {
	Login(ctx context.Context, meta audit.Meta)
	AuthFailed(ctx context.Context, meta audit.Meta, subjectID string, cause error)
}

// VerifyResponse is returned by GET /auth/verify.
type VerifyResponse struct {
	Authenticated bool              `json:"authenticated"`
	Principal     *domain.Principal `json:"principal"`
}

// AuthHandler serves /auth/verify: it checks the bearer token and records a
// Login or AuthFailed audit record.
type AuthHandler struct {
	auditor AuthAuditor
	logger  *slog.Logger
}

func NewAuthHandler(auditor AuthAuditor, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auditor: auditor, logger: logger}
}

// Register mounts the verify route behind token validation.
func (h *AuthHandler) Register(r chi.Router, validator auth.ClaimsValidator) {
	r.With(auth.RequireAuth(validator, h.logger, auth.WithFailureHook(h.onFailure))).
		Get("/auth/verify", h.handleVerify)
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.auditor.Login(ctx, audit.MetaFromRequest(r).WithStatus(http.StatusOK, requestcontext.Now(ctx)))
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Authenticated: true,
		Principal:     requestcontext.Principal(ctx),
	})
}

func (h *AuthHandler) onFailure(r *http.Request, err error) {
	meta := audit.MetaFromRequest(r).WithStatus(http.StatusUnauthorized, requestcontext.Now(r.Context()))
	h.auditor.AuthFailed(r.Context(), meta, "", err)
}

// HealthHandler reports liveness plus the state of optional dependencies.
// Degraded dependencies do not fail the check: the service keeps serving
// without them.
type HealthHandler struct {
	service string
	checks  map[string]func(ctx context.Context) string
}

func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service, checks: make(map[string]func(context.Context) string)}
}

// Check adds a named dependency probe returning a short status word.
func (h *HealthHandler) Check(name string, probe func(ctx context.Context) string) *HealthHandler {
	h.checks[name] = probe
	return h
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Time    time.Time         `json:"time"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Service: h.service, Time: requestcontext.Now(ctx).UTC()}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, probe := range h.checks {
			resp.Checks[name] = probe(ctx)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
