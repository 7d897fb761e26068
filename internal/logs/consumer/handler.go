// Package consumer turns user lifecycle events from the bus into audit records.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"corridor/internal/eventbus"
	"corridor/pkg/domain"
	audit "corridor/pkg/platform/audit"
)

// FallbackRequestID marks records whose event carried no trace.
const FallbackRequestID = "event-consumer"

// Ingester stores one audit record.
type Ingester interface {
	Ingest(ctx context.Context, record audit.Record) (audit.Record, error)
}

// Handler implements eventbus.Handler.
type Handler struct {
	ingester       Ingester
	defaultService string
	logger         *slog.Logger
}

func New(ingester Ingester, defaultService string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ingester: ingester, defaultService: defaultService, logger: logger}
}

var actions = map[eventbus.EventType]audit.Action{
	eventbus.UserCreated: audit.ActionCreated,
	eventbus.UserUpdated: audit.ActionModified,
	eventbus.UserDeleted: audit.ActionDeleted,
}

// Handle maps msg to a record and stores it. The AMQP message id becomes the
// record id so a redelivered event is stored once.
func (h *Handler) Handle(ctx context.Context, msg eventbus.Message) error {
	record, err := h.Record(msg)
	if err != nil {
		return err
	}
	if _, err := h.ingester.Ingest(ctx, record); err != nil {
		return fmt.Errorf("ingest %s: %w", msg.Type, err)
	}
	h.logger.DebugContext(ctx, "event recorded",
		"event_type", msg.Type,
		"record_id", record.ID,
		"request_id", record.RequestID,
	)
	return nil
}

// Record builds the audit record for msg.
func (h *Handler) Record(msg eventbus.Message) (audit.Record, error) {
	action, ok := actions[msg.Type]
	if !ok {
		return audit.Record{}, fmt.Errorf("no audit action for %s", msg.Type)
	}

	rec := audit.Record{
		ID:          recordID(msg),
		RequestID:   msg.Trace.TraceID,
		ServiceName: msg.Envelope.Service,
		UserID:      msg.Event.SubjectID(),
		IDType:      audit.IDTypeCC,
		Action:      action,
		Severity:    audit.SeverityInfo,
		Data:        map[string]any{"eventType": string(msg.Type)},
		Time:        msg.OccurredAt,
	}
	if rec.RequestID == "" {
		rec.RequestID = FallbackRequestID
	}
	if rec.ServiceName == "" {
		rec.ServiceName = h.defaultService
	}
	if msg.Redelivered {
		rec.Data["redelivered"] = true
	}

	switch e := msg.Event.(type) {
	case eventbus.UserCreatedEvent:
		rec.UserEmail = e.Email
		if e.FirstName != "" {
			rec.Data["firstName"] = e.FirstName
		}
	case eventbus.UserUpdatedEvent:
		rec.Data["updates"] = e.Updates
	case eventbus.UserDeletedEvent:
		rec.Severity = audit.SeverityWarning
		if e.DeletedBy != "" {
			rec.Data["deletedBy"] = e.DeletedBy
		}
	}
	return rec, nil
}

// recordID prefers the broker message id. Without one, a name-based UUID over
// the envelope keeps redeliveries idempotent.
func recordID(msg eventbus.Message) string {
	if id, err := domain.ParseMessageID(msg.ID); err == nil {
		return id.String()
	}
	name := string(msg.Type) + "|" + msg.Envelope.Timestamp + "|" + string(msg.Envelope.Data)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
