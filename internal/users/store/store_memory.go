// Package store holds user repositories.
package store

import (
	"context"
	"fmt"
	"sync"

	"corridor/internal/users/models"
	"corridor/pkg/platform/sentinel"
)

// InMemoryStore is the default user repository.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]models.User)}
}

// Save inserts or replaces u. A different user already holding the same
// email is a conflict.
func (s *InMemoryStore) Save(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if id != u.ID && existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, sentinel.ErrConflict)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	return u, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.users, id)
	return nil
}
