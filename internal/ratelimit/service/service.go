// Package service admits or rejects requests against fixed-window quotas kept
// in a shared counter store.
//
// The limiter fails open: when the store errors or times out, the request is
// admitted and the decision is marked Degraded. A circuit breaker stops
// calling an unreachable store and probes it again after a cooldown.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"corridor/internal/ratelimit/metrics"
	"corridor/internal/ratelimit/models"
	"corridor/internal/ratelimit/ports"
	"corridor/pkg/platform/circuit"
	"corridor/pkg/requestcontext"
)

// DefaultStoreTimeout bounds each store round trip.
const DefaultStoreTimeout = 200 * time.Millisecond

type Service struct {
	store        ports.CounterStore
	breaker      *circuit.Breaker
	logger       *slog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithCircuitBreaker replaces the default store breaker.
func WithCircuitBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

func New(store ports.CounterStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	svc := &Service{
		store:        store,
		logger:       slog.Default(),
		storeTimeout: DefaultStoreTimeout,
		breaker: circuit.New("ratelimit-store",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(5*time.Second),
		),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Admit counts one request for identity under policy and decides whether it
// may proceed. It never returns an error: store failures fail open.
//
// The store call is detached from ctx cancellation so an aborted client does
// not leave the counter half-updated.
func (s *Service) Admit(ctx context.Context, policy models.Policy, identity string) models.Decision {
	now := requestcontext.Now(ctx)
	key := models.CounterKey(policy.Name, identity)

	if !s.breaker.Allow() {
		s.recordFailOpen(policy.Name, "circuit_open")
		return degradedDecision(policy, now)
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	entry, err := s.store.Increment(storeCtx, key, policy.WindowDuration)
	if err != nil {
		s.onStoreFailure(ctx, policy, err)
		return degradedDecision(policy, now)
	}
	s.onStoreSuccess(ctx)

	decision := models.NewDecision(entry, policy.MaxRequests, now)
	if s.metrics != nil {
		s.metrics.RecordDecision(policy.Name, decision.Allowed)
	}
	if !decision.Allowed {
		s.logger.InfoContext(ctx, "rate limit exceeded",
			"policy", policy.Name,
			"limit", policy.MaxRequests,
			"window_seconds", int(policy.WindowDuration.Seconds()),
			"retry_after", decision.RetryAfterSeconds,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return decision
}

// Refund gives back one admission, used for policies that only count failed
// attempts. Failures are logged and ignored.
func (s *Service) Refund(ctx context.Context, policy models.Policy, identity string) {
	if s.breaker.IsOpen() {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.store.Decrement(storeCtx, models.CounterKey(policy.Name, identity)); err != nil {
		s.logger.WarnContext(ctx, "rate limit refund failed",
			"policy", policy.Name,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRefund(policy.Name)
	}
}

// Degraded reports whether the store circuit is open.
func (s *Service) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *Service) onStoreFailure(ctx context.Context, policy models.Policy, err error) {
	_, change := s.breaker.RecordFailure()
	s.recordFailOpen(policy.Name, "store_error")
	s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
		"policy", policy.Name,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if change.Opened {
		s.logger.ErrorContext(ctx, "rate limit store circuit opened", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCircuitOpen(true)
		}
	}
}

func (s *Service) onStoreSuccess(ctx context.Context) {
	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCircuitOpen(false)
		}
	}
}

func (s *Service) recordFailOpen(policy, reason string) {
	if s.metrics != nil {
		s.metrics.RecordFailOpen(policy, reason)
	}
}

func degradedDecision(policy models.Policy, now time.Time) models.Decision {
	return models.Decision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		ResetAt:   now.Add(policy.WindowDuration),
		Degraded:  true,
	}
}
