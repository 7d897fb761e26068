// Package audit defines the audit record exchanged between services and the
// log collaborator, and the emitter that delivers it.
package audit

import (
	"fmt"
	"time"

	dErrors "corridor/pkg/domain-errors"
)

// Action is what happened to the subject.
type Action string

const (
	ActionCreated         Action = "Created"
	ActionModified        Action = "Modified"
	ActionDeleted         Action = "Deleted"
	ActionRead            Action = "Read"
	ActionRAGQuery        Action = "ConsultaRAG"
	ActionLogin           Action = "Login"
	ActionLogout          Action = "Logout"
	ActionAuthFailed      Action = "AuthFailed"
	ActionValidationError Action = "ValidationError"
	ActionServerError     Action = "ServerError"
)

var validActions = map[Action]bool{
	ActionCreated: true, ActionModified: true, ActionDeleted: true, ActionRead: true,
	ActionRAGQuery: true, ActionLogin: true, ActionLogout: true, ActionAuthFailed: true,
	ActionValidationError: true, ActionServerError: true,
}

func (a Action) IsValid() bool { return validActions[a] }

// Severity levels, lowest first.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// IsError reports whether the record belongs in the error view.
func (s Severity) IsError() bool {
	return s == SeverityError || s == SeverityCritical
}

// IDType says how to read a record's UserID.
type IDType string

const (
	IDTypeTI       IDType = "TI"
	IDTypeCC       IDType = "CC"
	IDTypeEntraOID IDType = "ENTRA_OID"
	IDTypeSystem   IDType = "SISTEMA"
)

func (t IDType) IsValid() bool {
	switch t {
	case IDTypeTI, IDTypeCC, IDTypeEntraOID, IDTypeSystem:
		return true
	}
	return false
}

// SystemSubject is the UserID of records with no human subject.
const SystemSubject = "SISTEMA"

// Record is one audit entry. It is written once by the log collaborator and
// never changed afterwards. The JSON form is the POST /log body.
type Record struct {
	// ID makes ingestion idempotent when set; the log store assigns one otherwise.
	ID          string         `json:"id,omitempty"`
	RequestID   string         `json:"requestId"`
	ServiceName string         `json:"serviceName"`
	UserID      string         `json:"userID"`
	IDType      IDType         `json:"idType"`
	UserEmail   string         `json:"userEmail,omitempty"`
	Action      Action         `json:"action"`
	Severity    Severity       `json:"severity"`
	Data        map[string]any `json:"data"`

	HTTPMethod string `json:"httpMethod,omitempty"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`

	DurationMs   *int64 `json:"duration,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorStack   string `json:"errorStack,omitempty"`

	Time        time.Time `json:"time"`
	Environment string    `json:"environment,omitempty"`
}

// Normalize fills defaults in place: idType CC, severity info, empty data.
func (r *Record) Normalize() {
	if r.IDType == "" {
		r.IDType = IDTypeCC
	}
	if r.Severity == "" {
		r.Severity = SeverityInfo
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
}

// Validate checks the fields the log collaborator requires.
func (r Record) Validate() error {
	switch {
	case r.RequestID == "":
		return dErrors.New(dErrors.CodeBadRequest, "requestId is required")
	case r.ServiceName == "":
		return dErrors.New(dErrors.CodeBadRequest, "serviceName is required")
	case r.UserID == "":
		return dErrors.New(dErrors.CodeBadRequest, "userID is required")
	case !r.Action.IsValid():
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action %q", r.Action))
	case !r.Severity.IsValid():
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown severity %q", r.Severity))
	case !r.IDType.IsValid():
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown idType %q", r.IDType))
	}
	return nil
}

// Duration sets DurationMs from d.
func (r *Record) Duration(d time.Duration) {
	ms := d.Milliseconds()
	r.DurationMs = &ms
}
