// Package models holds the question/answer shapes served by POST /query.
package models

import (
	"strings"
	"unicode/utf8"

	dErrors "corridor/pkg/domain-errors"
)

// MaxQuestionLength is measured in characters, not bytes.
const MaxQuestionLength = 500

type Request struct {
	Question string `json:"question"`
}

func (r *Request) Normalize() {
	r.Question = strings.TrimSpace(r.Question)
}

func (r *Request) Validate() error {
	if r.Question == "" {
		return dErrors.New(dErrors.CodeBadRequest, "question is required")
	}
	if utf8.RuneCountInString(r.Question) > MaxQuestionLength {
		return dErrors.New(dErrors.CodeBadRequest, "question must not exceed 500 characters")
	}
	return nil
}

// Answer is what an answerer produced and how.
type Answer struct {
	Text   string `json:"answer"`
	Method string `json:"method"`
}

type Response struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Method   string `json:"method"`
}
