package claims

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var jwksRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "corridor_claims_jwks_refresh_failures_total",
	Help: "Failed JWKS fetches",
})

// JWKS verifies signatures with keys from an identity provider's key set
// endpoint. Keys are cached and refreshed hourly; an unknown kid triggers an
// immediate refresh at most once per minRefresh.
type JWKS struct {
	keys keyfunc.Keyfunc
}

type jwksOptions struct {
	client     *http.Client
	timeout    time.Duration
	minRefresh time.Duration
	logger     *slog.Logger
}

type JWKSOption func(*jwksOptions)

// WithFetchTimeout bounds each key set fetch.
func WithFetchTimeout(d time.Duration) JWKSOption {
	return func(o *jwksOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) JWKSOption {
	return func(o *jwksOptions) {
		if c != nil {
			o.client = c
		}
	}
}

func WithMinRefreshInterval(d time.Duration) JWKSOption {
	return func(o *jwksOptions) {
		if d > 0 {
			o.minRefresh = d
		}
	}
}

func WithJWKSLogger(logger *slog.Logger) JWKSOption {
	return func(o *jwksOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewJWKS fetches the key set at url and keeps it fresh until ctx ends. An
// unreachable endpoint at startup is logged, not fatal; lookups retry it.
func NewJWKS(ctx context.Context, url string, opts ...JWKSOption) (*JWKS, error) {
	o := jwksOptions{
		client:     http.DefaultClient,
		timeout:    300 * time.Millisecond,
		minRefresh: time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	k, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{url}, keyfunc.Override{
		Client:      o.client,
		HTTPTimeout: o.timeout,
		// An unknown kid waits no longer than a fetch for its refresh slot.
		RateLimitWaitMax:  o.timeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(o.minRefresh), 1),
		RefreshErrorHandlerFunc: func(u string) func(context.Context, error) {
			return func(ctx context.Context, err error) {
				jwksRefreshFailures.Inc()
				o.logger.WarnContext(ctx, "jwks refresh failed", "url", u, "error", err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}
	return &JWKS{keys: k}, nil
}

// Key implements KeySource.
func (j *JWKS) Key(ctx context.Context, token *jwt.Token) (any, error) {
	return j.keys.KeyfuncCtx(ctx)(token)
}
