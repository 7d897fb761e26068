// Package sentinel holds the storage facts user and log stores report. Stores
// wrap these; services translate them into coded domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound: no user or log record with the requested id.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a unique field (a user's email) is already taken.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable: the backing store cannot be reached.
	ErrUnavailable = errors.New("unavailable")
)
