package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/tracecontext"
)

// EventType is the full routing key of an event, "<entity>.<action>".
type EventType string

const (
	UserCreated EventType = "user.created"
	UserUpdated EventType = "user.updated"
	UserDeleted EventType = "user.deleted"
)

// Entity is the part before the first dot.
func (t EventType) Entity() string {
	entity, _, _ := strings.Cut(string(t), ".")
	return entity
}

// Action is the part after the first dot; it is what the envelope carries as eventType.
func (t EventType) Action() string {
	_, action, _ := strings.Cut(string(t), ".")
	return action
}

// Known reports whether t is one of the event types this system understands.
func (t EventType) Known() bool {
	switch t {
	case UserCreated, UserUpdated, UserDeleted:
		return true
	}
	return false
}

// Event is the closed set of payloads that travel on the bus.
type Event interface {
	Type() EventType
	// SubjectID is the id of the entity the event is about.
	SubjectID() string
	validate() error
}

// UserCreatedEvent is published after a user record is created.
type UserCreatedEvent struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
}

func (UserCreatedEvent) Type() EventType     { return UserCreated }
func (e UserCreatedEvent) SubjectID() string { return e.ID }

func (e UserCreatedEvent) validate() error {
	if e.ID == "" {
		return errMissingField(UserCreated, "id")
	}
	if e.Email == "" {
		return errMissingField(UserCreated, "email")
	}
	return nil
}

// UserUpdatedEvent lists the names of the fields that changed, never their values.
type UserUpdatedEvent struct {
	ID      string   `json:"id"`
	Updates []string `json:"updates"`
}

func (UserUpdatedEvent) Type() EventType     { return UserUpdated }
func (e UserUpdatedEvent) SubjectID() string { return e.ID }

func (e UserUpdatedEvent) validate() error {
	if e.ID == "" {
		return errMissingField(UserUpdated, "id")
	}
	return nil
}

// UserDeletedEvent is published after a user is removed.
type UserDeletedEvent struct {
	ID        string `json:"id"`
	DeletedBy string `json:"deletedBy,omitempty"`
}

func (UserDeletedEvent) Type() EventType     { return UserDeleted }
func (e UserDeletedEvent) SubjectID() string { return e.ID }

func (e UserDeletedEvent) validate() error {
	if e.ID == "" {
		return errMissingField(UserDeleted, "id")
	}
	return nil
}

// Envelope is the JSON body of every bus message.
type Envelope struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Service   string          `json:"service"`
	TraceID   string          `json:"traceId,omitempty"`
}

// NewEnvelope serializes event for publishing.
func NewEnvelope(event Event, trace tracecontext.TraceContext, now time.Time) (Envelope, error) {
	if err := event.validate(); err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event.Type(), err)
	}
	return Envelope{
		EventType: event.Type().Action(),
		Data:      data,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Service:   trace.OriginService,
		TraceID:   trace.TraceID,
	}, nil
}

// OccurredAt parses the envelope timestamp, falling back to fallback when it
// is missing or malformed.
func (e Envelope) OccurredAt(fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		return t
	}
	return fallback
}

// Decode validates a message body delivered with routingKey and returns the
// envelope and its typed payload. Unknown types and malformed payloads are
// rejected here so handlers only ever see well-formed events.
func Decode(routingKey string, body []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed envelope")
	}

	t := EventType(routingKey)
	if !t.Known() {
		return env, nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown event type %q", routingKey))
	}
	if env.EventType != t.Action() && env.EventType != string(t) {
		return env, nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("envelope eventType %q does not match routing key %q", env.EventType, routingKey))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env, nil, dErrors.New(dErrors.CodeBadRequest, "envelope has no data")
	}

	var event Event
	switch t {
	case UserCreated:
		var e UserCreatedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return env, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed user.created payload")
		}
		event = e
	case UserUpdated:
		var e UserUpdatedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return env, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed user.updated payload")
		}
		event = e
	case UserDeleted:
		var e UserDeletedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return env, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed user.deleted payload")
		}
		event = e
	}
	if err := event.validate(); err != nil {
		return env, nil, err
	}
	return env, event, nil
}

func errMissingField(t EventType, field string) error {
	return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%s payload requires %s", t, field))
}
