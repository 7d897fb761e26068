// Package domain holds identity primitives shared across the edge service and
// the log service.
package domain

import (
	"slices"
	"strings"
)

// Principal is the authenticated identity derived from a validated token.
// SubjectID is always non-empty for a principal produced by the validator.
type Principal struct {
	SubjectID   string         `json:"oid"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"name,omitempty"`
	Roles       []string       `json:"roles"`
	Groups      []string       `json:"groups,omitempty"`
	TenantID    string         `json:"tid,omitempty"`
	RawClaims   map[string]any `json:"-"`
}

// Role names recognised by role gates. Matching is case-insensitive.
const (
	RoleAdmin = "Admin"
)

// HasRole reports whether the principal carries role, ignoring case.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.ContainsFunc(p.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// IsAdmin is HasRole(RoleAdmin).
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
