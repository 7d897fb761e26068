package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"corridor/internal/ratelimit/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/httputil"
	"corridor/pkg/platform/privacy"
	"corridor/pkg/requestcontext"
)

// Response headers. RateLimit-* follow the IETF draft (reset is seconds until
// the window ends); X-RateLimit-Status flags fail-open decisions.
const (
	HeaderLimit      = "RateLimit-Limit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderReset      = "RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
	HeaderStatus     = "X-RateLimit-Status"
)

// maxIdentityBody caps how much of a login body is read to find the subject.
const maxIdentityBody = 64 << 10

// Limiter is the admission service.
type Limiter interface {
	Admit(ctx context.Context, policy models.Policy, identity string) models.Decision
	Refund(ctx context.Context, policy models.Policy, identity string)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Gate returns a pre-handler that admits requests under policy.
func (m *Middleware) Gate(policy models.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			identity := m.identityFor(r, policy.KeyStrategy)
			decision := m.limiter.Admit(ctx, policy, identity)

			addRateLimitHeaders(w, decision, requestcontext.Now(ctx))

			if !decision.Allowed {
				m.logger.WarnContext(ctx, "request rejected by rate limit",
					"policy", policy.Name,
					"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
					"retry_after", decision.RetryAfterSeconds,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeRateLimitExceeded(w, policy, decision)
				return
			}

			if !policy.SkipSuccessful || decision.Degraded {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status < http.StatusBadRequest {
				m.limiter.Refund(ctx, policy, identity)
			}
		})
	}
}

// identityFor derives the counter identity for a key strategy.
func (m *Middleware) identityFor(r *http.Request, strategy models.KeyStrategy) string {
	ctx := r.Context()
	ip := requestcontext.ClientIP(ctx)
	if ip == "" {
		ip = "unknown"
	}

	switch strategy {
	case models.ByClientAddressAndSubject:
		subject := requestcontext.SubjectID(ctx)
		if subject == "" {
			subject = bearerSubject(r)
		}
		if subject == "" {
			subject = loginSubject(r)
		}
		if subject == "" {
			subject = "unknown"
		}
		return models.Identity(ip, strings.ToLower(subject))
	case models.ByPrincipal:
		if subject := requestcontext.SubjectID(ctx); subject != "" {
			return models.Identity("sub", subject)
		}
		return models.Identity("ip", ip)
	default:
		return models.Identity(ip)
	}
}

// bearerSubject reads oid (or sub) from an unverified bearer token. The gate
// runs before authentication, and the value only partitions counters.
func bearerSubject(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return ""
	}
	for _, name := range []string{"oid", "sub"} {
		if v, _ := claims[name].(string); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// loginSubject peeks at a JSON body for email or username and restores the
// body for the handler.
func loginSubject(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 || r.Method == http.MethodGet {
		return ""
	}
	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxIdentityBody))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), r.Body))
	if err != nil || len(bodyBytes) == 0 {
		return ""
	}
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if json.Unmarshal(bodyBytes, &payload) != nil {
		return ""
	}
	if v := strings.TrimSpace(payload.Email); v != "" {
		return v
	}
	return strings.TrimSpace(payload.Username)
}

func addRateLimitHeaders(w http.ResponseWriter, d models.Decision, now time.Time) {
	w.Header().Set(HeaderLimit, strconv.Itoa(d.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	w.Header().Set(HeaderReset, strconv.Itoa(models.SecondsUntil(d.ResetAt, now)))
	if d.Degraded {
		w.Header().Set(HeaderStatus, "degraded")
	}
}

func writeRateLimitExceeded(w http.ResponseWriter, policy models.Policy, d models.Decision) {
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfterSeconds))
	message := policy.Message
	if message == "" {
		message = "Too many requests. Please try again later."
	}
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      string(dErrors.CodeQuotaExceeded),
		Message:    message,
		RetryAfter: d.RetryAfterSeconds,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
