// Package intent decides whether a question asks for structured data or a
// generative action (a prescription/report) before any SQL is synthesized.
// Classification failure never aborts a request; it degrades to the query
// intent with no field.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/farmpulse/hexquery/internal/completion"
)

type Intent string

const (
	IntentQuery        Intent = "query"
	IntentPrescription Intent = "prescription"
)

type Classification struct {
	Intent    Intent
	FieldName string
}

type Classifier struct {
	completer completion.Completer
}

func New(completer completion.Completer) *Classifier {
	return &Classifier{completer: completer}
}

// Classify runs a one-shot classification call. Any failure, transport or
// parse, falls back to the query intent with no field.
func (c *Classifier) Classify(ctx context.Context, question string, fieldValues []string) Classification {
	fallback := Classification{Intent: IntentQuery}

	text, err := c.completer.Complete(ctx, renderClassifierPrompt(question, fieldValues))
	if err != nil {
		return fallback
	}

	var payload struct {
		Intent    string `json:"intent"`
		FieldName string `json:"field_name"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &payload); err != nil {
		return fallback
	}

	parsed := Intent(strings.ToLower(strings.TrimSpace(payload.Intent)))
	if parsed != IntentQuery && parsed != IntentPrescription {
		return fallback
	}

	return Classification{
		Intent:    parsed,
		FieldName: CanonicalField(payload.FieldName, fieldValues),
	}
}

func renderClassifierPrompt(question string, fieldValues []string) string {
	var sb strings.Builder
	sb.WriteString("Classify the user's request about an agricultural dataset.\n")
	sb.WriteString(`Respond with a single JSON object: {"intent": "query" | "prescription", "field_name": "<field or empty>"}` + "\n")
	sb.WriteString("\"query\" means a data question answerable with SQL; \"prescription\" means a request to generate a variable-rate prescription or report.\n")
	if len(fieldValues) > 0 {
		sb.WriteString("Known field names:\n")
		for _, value := range fieldValues {
			sb.WriteString(fmt.Sprintf("- %q\n", value))
		}
	}
	sb.WriteString("\nRequest: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n")
	return sb.String()
}

// CanonicalField maps a model-reported field name onto the canonical stored
// value. Matching is deterministic: case-insensitive exact match first, then
// a unique match on the alphanumeric-only normalization, then a unique
// substring match. An ambiguous or absent match yields no field.
func CanonicalField(raw string, values []string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	for _, value := range values {
		if strings.EqualFold(value, raw) {
			return value
		}
	}

	normalizedRaw := normalizeField(raw)
	if normalizedRaw == "" {
		return ""
	}

	var match string
	matches := 0
	for _, value := range values {
		if normalizeField(value) == normalizedRaw {
			match = value
			matches++
		}
	}
	if matches == 1 {
		return match
	}
	if matches > 1 {
		return ""
	}

	matches = 0
	for _, value := range values {
		normalized := normalizeField(value)
		if strings.Contains(normalized, normalizedRaw) || strings.Contains(normalizedRaw, normalized) {
			match = value
			matches++
		}
	}
	if matches == 1 {
		return match
	}
	return ""
}

func normalizeField(value string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
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
