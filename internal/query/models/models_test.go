package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		question string
		wantErr  bool
	}{
		{"ok", "  how many users signed up today?  ", false},
		{"blank", "   ", true},
		{"at limit in multibyte characters", strings.Repeat("ñ", MaxQuestionLength), false},
		{"over limit", strings.Repeat("a", MaxQuestionLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Request{Question: tt.question}
			r.Normalize()
			if tt.wantErr {
				assert.Error(t, r.Validate())
			} else {
				assert.NoError(t, r.Validate())
			}
		})
	}
}
