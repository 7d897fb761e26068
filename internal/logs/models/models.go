package models

import (
	"regexp"
	"slices"
	"time"

	dErrors "corridor/pkg/domain-errors"
	audit "corridor/pkg/platform/audit"
)

const (
	// MaxLimit caps every listing.
	MaxLimit = 1000
	// DefaultUserLimit is the size of the per-user view.
	DefaultUserLimit = 100
	// DefaultErrorsLimit is the size of the recent errors view.
	DefaultErrorsLimit = 100
)

// Query selects stored records. Zero fields do not filter.
type Query struct {
	UserID      string
	IDType      audit.IDType
	RequestID   string
	ServiceName string
	Action      audit.Action
	Severities  []audit.Severity
	From        time.Time
	To          time.Time
	// Ascending returns oldest first; the default is newest first.
	Ascending bool
	Limit     int
}

// Matches reports whether r satisfies every filter in q.
func (q Query) Matches(r audit.Record) bool {
	switch {
	case q.UserID != "" && r.UserID != q.UserID:
		return false
	case q.IDType != "" && r.IDType != q.IDType:
		return false
	case q.RequestID != "" && r.RequestID != q.RequestID:
		return false
	case q.ServiceName != "" && r.ServiceName != q.ServiceName:
		return false
	case q.Action != "" && r.Action != q.Action:
		return false
	case len(q.Severities) > 0 && !slices.Contains(q.Severities, r.Severity):
		return false
	case !q.From.IsZero() && r.Time.Before(q.From):
		return false
	case !q.To.IsZero() && r.Time.After(q.To):
		return false
	}
	return true
}

// EffectiveLimit clamps Limit to (0, MaxLimit], using fallback when unset.
func (q Query) EffectiveLimit(fallback int) int {
	limit := q.Limit
	if limit <= 0 {
		limit = fallback
	}
	return min(limit, MaxLimit)
}

// Validate rejects filter values outside the known enums and inverted ranges.
func (q Query) Validate() error {
	if q.IDType != "" && !q.IDType.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid idType")
	}
	if q.Action != "" && !q.Action.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid action")
	}
	for _, s := range q.Severities {
		if !s.IsValid() {
			return dErrors.New(dErrors.CodeBadRequest, "invalid severity")
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return dErrors.New(dErrors.CodeBadRequest, "dateTo is before dateFrom")
	}
	return nil
}

var (
	numericID = regexp.MustCompile(`^\d+$`)
	uuidLike  = regexp.MustCompile(`^(?i)[a-f0-9-]{36}$`)
)

// ValidUserID accepts document numbers and UUID-shaped object ids.
func ValidUserID(id string) bool {
	return numericID.MatchString(id) || uuidLike.MatchString(id)
}

// ErrorSeverities is the error view filter.
var ErrorSeverities = []audit.Severity{audit.SeverityError, audit.SeverityCritical}
