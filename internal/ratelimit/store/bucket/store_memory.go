package bucket

import (
	"context"
	"sync"
	"time"

	"corridor/internal/ratelimit/models"
)

// InMemoryBucketStore implements fixed-window counters in process memory.
// It is only correct for a single instance and is used when no shared store
// is configured, and in tests.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	clock   func() time.Time
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// MemoryOption configures an InMemoryBucketStore.
type MemoryOption func(*InMemoryBucketStore)

// WithClock overrides the time source, for tests that move time forward.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryBucketStore creates a new in-memory bucket store.
func NewInMemoryBucketStore(opts ...MemoryOption) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		windows: make(map[string]*fixedWindow),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment counts one request against key.
func (s *InMemoryBucketStore) Increment(_ context.Context, key string, window time.Duration) (models.CounterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return models.CounterEntry{Key: key, Count: w.count, WindowResetAt: w.resetAt}, nil
}

// Decrement refunds one request within the live window.
func (s *InMemoryBucketStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || !s.clock().Before(w.resetAt) || w.count == 0 {
		return nil
	}
	w.count--
	return nil
}

// GetCurrentCount returns the live count for key, 0 when absent or expired.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || !s.clock().Before(w.resetAt) {
		return 0, nil
	}
	return w.count, nil
}

// Sweep drops expired windows. Callers with many distinct identities run it
// periodically to bound memory.
func (s *InMemoryBucketStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *InMemoryBucketStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
