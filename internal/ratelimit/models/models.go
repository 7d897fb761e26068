package models

import (
	"time"

	dErrors "corridor/pkg/domain-errors"
)

// KeyStrategy selects which request attributes identify the caller.
type KeyStrategy string

const (
	// ByClientAddress keys on the client IP.
	ByClientAddress KeyStrategy = "byClientAddress"
	// ByClientAddressAndSubject keys on IP plus the claimed subject (login name).
	ByClientAddressAndSubject KeyStrategy = "byClientAddressAndSubject"
	// ByPrincipal keys on the authenticated subject, falling back to IP.
	ByPrincipal KeyStrategy = "byPrincipal"
)

// IsValid checks if the strategy is one of the supported enum values.
func (k KeyStrategy) IsValid() bool {
	switch k {
	case ByClientAddress, ByClientAddressAndSubject, ByPrincipal:
		return true
	}
	return false
}

// Policy is a statically configured quota for a route group.
type Policy struct {
	Name           string
	WindowDuration time.Duration
	MaxRequests    int
	KeyStrategy    KeyStrategy
	// SkipSuccessful refunds the admission when the handler responds < 400,
	// so only failed attempts count against the quota.
	SkipSuccessful bool
	// Message is returned in the 429 body.
	Message string
}

// Validate enforces the invariants every configured policy must hold.
func (p Policy) Validate() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "policy name cannot be empty")
	}
	if p.WindowDuration <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "policy window must be positive")
	}
	if p.MaxRequests <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "policy max requests must be positive")
	}
	if !p.KeyStrategy.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid key strategy")
	}
	return nil
}

// CounterEntry is the state of one fixed-window counter after a store operation.
type CounterEntry struct {
	Key           string
	Count         int
	WindowResetAt time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds int       `json:"retry_after,omitempty"`
	// Degraded marks a decision made without consulting the store (fail-open).
	Degraded bool `json:"degraded,omitempty"`
}

// NewDecision derives a decision from the post-increment counter state.
// A request is admitted while count <= limit; the retry hint is rounded up so
// a rejected caller never retries before the window resets.
func NewDecision(entry CounterEntry, limit int, now time.Time) Decision {
	d := Decision{
		Allowed:   entry.Count <= limit,
		Limit:     limit,
		Remaining: max(limit-entry.Count, 0),
		ResetAt:   entry.WindowResetAt,
	}
	if !d.Allowed {
		d.RetryAfterSeconds = SecondsUntil(entry.WindowResetAt, now)
	}
	return d
}

// SecondsUntil rounds the remaining time up to whole seconds, minimum 1.
func SecondsUntil(t, now time.Time) int {
	remaining := t.Sub(now)
	secs := int((remaining + time.Second - 1) / time.Second)
	return max(secs, 1)
}
