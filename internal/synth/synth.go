// Package synth turns completion output into a SQL candidate. This is the
// single point where untrusted model text becomes executable SQL; every
// downstream stage treats the extracted statement as adversarial input.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/farmpulse/hexquery/internal/completion"
)

// AnswerKind classifies the intended visualization shape of a query.
type AnswerKind string

const (
	AnswerSpatial    AnswerKind = "MAP"
	AnswerTabular    AnswerKind = "TABLE"
	AnswerRelational AnswerKind = "SCATTERPLOT"
)

func parseAnswerKind(raw string) (AnswerKind, bool) {
	switch AnswerKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case AnswerSpatial:
		return AnswerSpatial, true
	case AnswerTabular:
		return AnswerTabular, true
	case AnswerRelational:
		return AnswerRelational, true
	default:
		return "", false
	}
}

// Outcome is the tagged result of one synthesis attempt.
type Outcome interface {
	outcome()
}

// Success carries an extracted SQL candidate. The statement has NOT been
// validated yet.
type Success struct {
	SQL         string
	Explanation string
	AnswerKind  AnswerKind
}

// Refusal is the model's structured refusal for a map request that names no
// field. It never reaches the guard or the executor.
type Refusal struct {
	Reason string
}

// MalformedOutput wraps completion text that does not satisfy the output
// contract.
type MalformedOutput struct {
	Raw string
}

func (Success) outcome()         {}
func (Refusal) outcome()         {}
func (MalformedOutput) outcome() {}

type Synthesizer struct {
	completer completion.Completer
}

func New(completer completion.Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Synthesize runs one completion call and parses the response. A transport
// failure is returned as an error; contract violations come back as
// MalformedOutput so the caller can degrade gracefully.
func (s *Synthesizer) Synthesize(ctx context.Context, renderedPrompt string) (Outcome, error) {
	text, err := s.completer.Complete(ctx, renderedPrompt)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	return Parse(text), nil
}

// Parse applies the output contract to raw completion text.
func Parse(text string) Outcome {
	cleaned := stripCodeFences(text)

	var payload struct {
		Status             string `json:"status"`
		ErrorDetails       string `json:"error_details"`
		SQLQuery           string `json:"sql_query"`
		SQLSummary         string `json:"sql_summary"`
		ExpectedAnswerType string `json:"expected_answer_type"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return MalformedOutput{Raw: text}
	}

	if strings.EqualFold(payload.Status, "ERROR") {
		reason := strings.TrimSpace(payload.ErrorDetails)
		if reason == "" {
			reason = "the request could not be answered"
		}
		return Refusal{Reason: reason}
	}

	sqlText := strings.TrimSpace(payload.SQLQuery)
	if sqlText == "" {
		return MalformedOutput{Raw: text}
	}
	kind, ok := parseAnswerKind(payload.ExpectedAnswerType)
	if !ok {
		return MalformedOutput{Raw: text}
	}

	return Success{
		SQL:         sqlText,
		Explanation: strings.TrimSpace(payload.SQLSummary),
		AnswerKind:  kind,
	}
}

func stripCodeFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
