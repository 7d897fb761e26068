// Package models holds the user aggregate and its request/response shapes.
package models

import (
	"strings"
	"time"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/email"
)

// AdminRole is required to delete users.
const AdminRole = domain.RoleAdmin

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Normalize trims whitespace and lowercases the email. A missing first name
// is derived from the email's local part.
func (r *CreateUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.FirstName == "" {
		first, last := email.DeriveName(r.Email)
		r.FirstName = first
		if r.LastName == "" {
			r.LastName = last
		}
	}
}

func (r *CreateUserRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	if _, ok := email.Normalize(r.Email); !ok {
		return dErrors.New(dErrors.CodeBadRequest, "email is invalid")
	}
	if r.FirstName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "firstName is required")
	}
	return nil
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

func (r *UpdateUserRequest) Normalize() {
	if r.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &v
	}
	if r.FirstName != nil {
		v := strings.TrimSpace(*r.FirstName)
		r.FirstName = &v
	}
	if r.LastName != nil {
		v := strings.TrimSpace(*r.LastName)
		r.LastName = &v
	}
}

func (r *UpdateUserRequest) Validate() error {
	if len(r.Fields()) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "no fields to update")
	}
	if r.Email != nil {
		if _, ok := email.Normalize(*r.Email); !ok {
			return dErrors.New(dErrors.CodeBadRequest, "email is invalid")
		}
	}
	if r.FirstName != nil && *r.FirstName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "firstName cannot be empty")
	}
	return nil
}

// Fields lists the JSON names of the fields being changed.
func (r *UpdateUserRequest) Fields() []string {
	var fields []string
	if r.Email != nil {
		fields = append(fields, "email")
	}
	if r.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if r.LastName != nil {
		fields = append(fields, "lastName")
	}
	return fields
}

// Apply copies the set fields onto u.
func (r *UpdateUserRequest) Apply(u *User) {
	if r.Email != nil {
		u.Email = *r.Email
	}
	if r.FirstName != nil {
		u.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		u.LastName = *r.LastName
	}
}
