package synth

import (
	"context"
	"fmt"
	"testing"

	"github.com/farmpulse/hexquery/internal/completion"
)

func TestParseSuccess(t *testing.T) {
	outcome := Parse(`{"sql_query": "SELECT h3_index FROM agricultural_hexes WHERE field_name = 'North of Road'", "sql_summary": "Cells in the field.", "expected_answer_type": "MAP"}`)

	success, ok := outcome.(Success)
	if !ok {
		t.Fatalf("outcome = %T, want Success", outcome)
	}
	if success.AnswerKind != AnswerSpatial {
		t.Fatalf("answer kind = %q", success.AnswerKind)
	}
	if success.Explanation != "Cells in the field." {
		t.Fatalf("explanation = %q", success.Explanation)
	}
}

func TestParseStripsCodeFences(t *testing.T) {
	outcome := Parse("```json\n{\"sql_query\": \"SELECT 1\", \"sql_summary\": \"s\", \"expected_answer_type\": \"table\"}\n```")

	success, ok := outcome.(Success)
	if !ok {
		t.Fatalf("outcome = %T, want Success", outcome)
	}
	if success.SQL != "SELECT 1" || success.AnswerKind != AnswerTabular {
		t.Fatalf("success = %+v", success)
	}
}

func TestParseStructuredRefusal(t *testing.T) {
	outcome := Parse(`{"status": "ERROR", "error_details": "a field name is required for map requests"}`)

	refusal, ok := outcome.(Refusal)
	if !ok {
		t.Fatalf("outcome = %T, want Refusal", outcome)
	}
	if refusal.Reason != "a field name is required for map requests" {
		t.Fatalf("reason = %q", refusal.Reason)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            "SELECT * FROM agricultural_hexes",
		"missing sql":         `{"sql_summary": "s", "expected_answer_type": "MAP"}`,
		"invalid answer kind": `{"sql_query": "SELECT 1", "sql_summary": "s", "expected_answer_type": "PIE"}`,
	}
	for name, raw := range cases {
		if _, ok := Parse(raw).(MalformedOutput); !ok {
			t.Fatalf("%s: expected MalformedOutput", name)
		}
	}
}

func TestSynthesizePropagatesCompletionErrors(t *testing.T) {
	synthesizer := New(completion.Func(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("upstream timeout")
	}))

	if _, err := synthesizer.Synthesize(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error from failing completer")
	}
}
