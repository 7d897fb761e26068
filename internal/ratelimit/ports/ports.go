package ports

import (
	"context"
	"time"

	"corridor/internal/ratelimit/models"
)

// CounterStore is the shared fixed-window counter store. Increment must be a
// single atomic operation across every service instance: it increments key,
// starts the window on the first increment and reports the post-increment state.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (models.CounterEntry, error)
	// Decrement undoes one admission inside the current window. Missing or
	// expired keys are left alone.
	Decrement(ctx context.Context, key string) error
}
