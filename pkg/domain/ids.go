package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "corridor/pkg/domain-errors"
)

// MessageID identifies one published bus message. Consumers use it to make
// persistence idempotent under redelivery.
type MessageID uuid.UUID

func NewMessageID() MessageID { return MessageID(uuid.New()) }

func (id MessageID) String() string { return uuid.UUID(id).String() }

func (id MessageID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseMessageID accepts a canonical UUID string. The nil UUID is rejected.
func ParseMessageID(s string) (MessageID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MessageID{}, dErrors.New(dErrors.CodeBadRequest, "message id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, dErrors.New(dErrors.CodeBadRequest, "message id is not a valid uuid")
	}
	if parsed == uuid.Nil {
		return MessageID{}, dErrors.New(dErrors.CodeBadRequest, "message id must not be nil")
	}
	return MessageID(parsed), nil
}
