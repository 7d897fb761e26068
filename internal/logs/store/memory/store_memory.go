package memory

import (
	"context"
	"slices"
	"sync"

	"corridor/internal/logs/models"
	audit "corridor/pkg/platform/audit"
)

// InMemoryStore keeps records in insertion order. Appending an ID that is
// already present is a no-op.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	ids     map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.ids = make(map[string]struct{})
}

// Append reports whether the record was new.
func (s *InMemoryStore) Append(_ context.Context, record audit.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[record.ID]; dup {
		return false, nil
	}
	s.ids[record.ID] = struct{}{}
	s.records = append(s.records, record)
	return true, nil
}

func (s *InMemoryStore) Find(_ context.Context, q models.Query) ([]audit.Record, error) {
	s.mu.RLock()
	matched := make([]audit.Record, 0)
	for _, r := range s.records {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b audit.Record) int {
		if q.Ascending {
			return a.Time.Compare(b.Time)
		}
		return b.Time.Compare(a.Time)
	})
	if limit := q.EffectiveLimit(models.MaxLimit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(context.Context) error { return nil }
