// Package httptransport assembles the edge service's HTTP surface: the
// middleware chain every request passes and the route groups behind it.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	rlconfig "corridor/internal/ratelimit/config"
	rlmodels "corridor/internal/ratelimit/models"
	"corridor/pkg/platform/middleware/auth"
	"corridor/pkg/platform/middleware/device"
	"corridor/pkg/platform/middleware/metadata"
	request "corridor/pkg/platform/middleware/request"
)

// RouteGroup registers a module's routes.
type RouteGroup interface {
	Register(r chi.Router)
}

// Gate builds a pre-handler for a rate limit policy.
type Gate interface {
	Gate(policy rlmodels.Policy) func(http.Handler) http.Handler
}

// Deps is everything the edge router wires together.
type Deps struct {
	ServiceName string
	Logger      *slog.Logger
	Validator   auth.ClaimsValidator
	Limiter     Gate
	Policies    *rlconfig.Config
	Auth        *AuthHandler
	Health      *HealthHandler
	Metrics     http.Handler
	Users       RouteGroup
	Query       RouteGroup
}

// NewRouter wires the chain correlation → client metadata → device → clock →
// general limiter, then the route groups.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Correlation(d.ServiceName))
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(request.Time)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))

	r.Get("/health", d.Health.ServeHTTP)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(d.Limiter.Gate(d.Policies.General))

		r.With(d.Limiter.Gate(d.Policies.Auth)).Group(func(r chi.Router) {
			d.Auth.Register(r, d.Validator)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.Validator, d.Logger))
			if d.Users != nil {
				d.Users.Register(r)
			}
			if d.Query != nil {
				r.With(d.Limiter.Gate(d.Policies.Cost)).Group(d.Query.Register)
			}
		})
	})
	return r
}
