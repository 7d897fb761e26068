package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "corridor/pkg/domain-errors"
)

func TestPrincipal_HasRole(t *testing.T) {
	p := &Principal{SubjectID: "oid-1", Roles: []string{"reader", "admin"}}

	assert.True(t, p.HasRole("Admin"))
	assert.True(t, p.HasRole("ADMIN"))
	assert.True(t, p.IsAdmin())
	assert.False(t, p.HasRole("writer"))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasRole("admin"))
}

func TestParseMessageID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMessageID("  ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseMessageID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil uuid", func(t *testing.T) {
		_, err := ParseMessageID(uuid.Nil.String())
		require.Error(t, err)
	})

	t.Run("round trips", func(t *testing.T) {
		id := NewMessageID()
		parsed, err := ParseMessageID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
		assert.False(t, parsed.IsNil())
	})
}
