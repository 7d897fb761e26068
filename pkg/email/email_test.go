package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" Ana.Ruiz@Example.COM ", "ana.ruiz@example.com", true},
		{"not-an-email", "", false},
		{"Ana <ana@example.com>", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"ana.maria.ruiz@example.com", "Ana", "Ruiz"},
		{"bob@example.com", "Bob", ""},
		{"j_doe+news@example.com", "J", "News"},
		{"@example.com", "", ""},
	}
	for _, tt := range tests {
		first, last := DeriveName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
