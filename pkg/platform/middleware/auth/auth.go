package auth

import (
	"context"
	"log/slog"
	"net/http"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/requestcontext"
)

// ClaimsValidator turns an Authorization header value into a principal.
type ClaimsValidator interface {
	ValidateHeader(ctx context.Context, authorization string) (*domain.Principal, error)
}

// FailureHook observes rejected requests, e.g. to emit an AuthFailed audit record.
type FailureHook func(r *http.Request, err error)

type config struct {
	onFailure FailureHook
}

type Option func(*config)

func WithFailureHook(h FailureHook) Option {
	return func(c *config) { c.onFailure = h }
}

// RequireAuth rejects requests without a valid bearer token with 401 and
// attaches the principal to the context otherwise.
func RequireAuth(validator ClaimsValidator, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, err := validator.ValidateHeader(ctx, r.Header.Get("Authorization"))
			if err != nil {
				requestID := requestcontext.RequestID(ctx)
				logger.WarnContext(ctx, "unauthorized access",
					"reason", string(dErrors.CodeOf(err)),
					"error", err,
					"request_id", requestID,
				)
				if cfg.onFailure != nil {
					cfg.onFailure(r, err)
				}
				httputil.WriteErrorWithRequestID(w, authError(err), requestID)
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireAuth. Missing roles yield 403.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := requestcontext.Principal(ctx)
			if principal == nil {
				httputil.WriteErrorWithRequestID(w,
					dErrors.New(dErrors.CodeUnauthenticated, "authentication required"),
					requestcontext.RequestID(ctx))
				return
			}
			if !principal.HasRole(role) {
				logger.WarnContext(ctx, "forbidden - missing role",
					"role", role,
					"subject_id", principal.SubjectID,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorWithRequestID(w,
					dErrors.New(dErrors.CodeForbidden, role+" role required"),
					requestcontext.RequestID(ctx))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authError keeps validator details such as JWKS outages out of responses.
func authError(err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthenticated, dErrors.CodeTokenExpired,
		dErrors.CodeInvalidIssuer, dErrors.CodeInvalidAudience:
		return err
	default:
		return dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}
}
