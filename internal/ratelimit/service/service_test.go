package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"corridor/internal/ratelimit/models"
	"corridor/internal/ratelimit/store/bucket"
	"corridor/pkg/platform/circuit"
	"corridor/pkg/requestcontext"
)

type failingStore struct {
	calls atomic.Int32
	err   error
}

func (f *failingStore) Increment(context.Context, string, time.Duration) (models.CounterEntry, error) {
	f.calls.Add(1)
	return models.CounterEntry{}, f.err
}

func (f *failingStore) Decrement(context.Context, string) error {
	f.calls.Add(1)
	return f.err
}

// slowStore blocks until its context is done, simulating a hung store.
type slowStore struct{}

func (slowStore) Increment(ctx context.Context, _ string, _ time.Duration) (models.CounterEntry, error) {
	<-ctx.Done()
	return models.CounterEntry{}, ctx.Err()
}

func (slowStore) Decrement(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

type ServiceSuite struct {
	suite.Suite
	now    time.Time
	store  *bucket.InMemoryBucketStore
	svc    *Service
	policy models.Policy
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store = bucket.NewInMemoryBucketStore(bucket.WithClock(func() time.Time { return s.now }))
	svc, err := New(s.store, WithLogger(discardLogger()))
	s.Require().NoError(err)
	s.svc = svc
	s.policy = models.Policy{
		Name:           "auth",
		WindowDuration: 15 * time.Minute,
		MaxRequests:    5,
		KeyStrategy:    models.ByClientAddressAndSubject,
	}
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TestFiveAllowedSixthRejected() {
	identity := models.Identity("10.0.0.1", "alice@example.com")
	for i := range 5 {
		d := s.svc.Admit(s.ctx(), s.policy, identity)
		s.True(d.Allowed, "request %d should be admitted", i+1)
		s.Equal(5-(i+1), d.Remaining)
	}

	d := s.svc.Admit(s.ctx(), s.policy, identity)
	s.False(d.Allowed)
	s.Positive(d.RetryAfterSeconds)
	s.Equal(15*60, d.RetryAfterSeconds)
}

func (s *ServiceSuite) TestRetryAfterShrinksWithTime() {
	identity := models.Identity("10.0.0.2")
	for range 6 {
		s.svc.Admit(s.ctx(), s.policy, identity)
	}
	s.now = s.now.Add(10 * time.Minute)
	d := s.svc.Admit(s.ctx(), s.policy, identity)
	s.False(d.Allowed)
	s.Equal(5*60, d.RetryAfterSeconds)
}

func (s *ServiceSuite) TestWindowResetAdmitsAgain() {
	identity := models.Identity("10.0.0.3")
	for range 6 {
		s.svc.Admit(s.ctx(), s.policy, identity)
	}
	s.now = s.now.Add(s.policy.WindowDuration)

	d := s.svc.Admit(s.ctx(), s.policy, identity)
	s.True(d.Allowed)
	s.Equal(4, d.Remaining, "counter resets rather than accumulating")
}

func (s *ServiceSuite) TestIdentitiesAndPoliciesAreIsolated() {
	for range 6 {
		s.svc.Admit(s.ctx(), s.policy, "10.0.0.4")
	}
	s.True(s.svc.Admit(s.ctx(), s.policy, "10.0.0.5").Allowed)

	other := s.policy
	other.Name = "general"
	s.True(s.svc.Admit(s.ctx(), other, "10.0.0.4").Allowed)
}

func (s *ServiceSuite) TestRefund() {
	identity := "10.0.0.6"
	for range 5 {
		s.svc.Admit(s.ctx(), s.policy, identity)
		s.svc.Refund(s.ctx(), s.policy, identity)
	}
	count, err := s.store.GetCurrentCount(context.Background(), models.CounterKey(s.policy.Name, identity))
	s.Require().NoError(err)
	s.Zero(count, "refunded admissions do not count")
	s.True(s.svc.Admit(s.ctx(), s.policy, identity).Allowed)
}

func (s *ServiceSuite) TestFailsOpenOnStoreError() {
	store := &failingStore{err: errors.New("connection refused")}
	svc, err := New(store, WithLogger(discardLogger()))
	s.Require().NoError(err)

	d := svc.Admit(s.ctx(), s.policy, "10.0.0.7")
	s.True(d.Allowed)
	s.True(d.Degraded)
}

func (s *ServiceSuite) TestFailsOpenOnStoreTimeout() {
	svc, err := New(slowStore{}, WithLogger(discardLogger()), WithStoreTimeout(20*time.Millisecond))
	s.Require().NoError(err)

	start := time.Now()
	d := svc.Admit(s.ctx(), s.policy, "10.0.0.8")
	s.True(d.Allowed)
	s.True(d.Degraded)
	s.Less(time.Since(start), time.Second)
}

func (s *ServiceSuite) TestCancelledRequestStillCounts() {
	ctx, cancel := context.WithCancel(s.ctx())
	cancel()
	d := s.svc.Admit(ctx, s.policy, "10.0.0.9")
	s.True(d.Allowed)
	s.False(d.Degraded)

	count, _ := s.store.GetCurrentCount(context.Background(), models.CounterKey(s.policy.Name, "10.0.0.9"))
	s.Equal(1, count)
}

func (s *ServiceSuite) TestCircuitOpensAndSkipsStore() {
	store := &failingStore{err: errors.New("connection refused")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	svc, err := New(store, WithLogger(discardLogger()), WithCircuitBreaker(breaker))
	s.Require().NoError(err)

	svc.Admit(s.ctx(), s.policy, "10.0.0.10")
	svc.Admit(s.ctx(), s.policy, "10.0.0.10")
	s.True(svc.Degraded())

	before := store.calls.Load()
	d := svc.Admit(s.ctx(), s.policy, "10.0.0.10")
	s.True(d.Allowed)
	s.True(d.Degraded)
	s.Equal(before, store.calls.Load(), "open circuit does not touch the store")
}

// Two limiter instances over one store model two service replicas.
func (s *ServiceSuite) TestConcurrentInstancesShareOneQuota() {
	replicaA, err := New(s.store, WithLogger(discardLogger()))
	s.Require().NoError(err)
	replicaB, err := New(s.store, WithLogger(discardLogger()))
	s.Require().NoError(err)

	var admitted atomic.Int32
	var g errgroup.Group
	for i := range 40 {
		replica := replicaA
		if i%2 == 0 {
			replica = replicaB
		}
		g.Go(func() error {
			if replica.Admit(s.ctx(), s.policy, "10.0.0.11").Allowed {
				admitted.Add(1)
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int32(s.policy.MaxRequests), admitted.Load())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
