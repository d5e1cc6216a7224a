package prompt

import (
	"strings"
	"testing"

	"github.com/farmpulse/hexquery/internal/schema"
)

func testSnapshot() *schema.Snapshot {
	return &schema.Snapshot{Tables: map[string]schema.TableInfo{
		"agricultural_hexes": {
			Columns: []schema.ColumnInfo{
				{Name: "h3_index", DeclaredType: "VARCHAR"},
				{Name: "field_name", DeclaredType: "VARCHAR"},
				{
					Name:         "ph",
					DeclaredType: "DOUBLE",
					Description:  "Soil pH",
					Thresholds:   &schema.Thresholds{Low: 5.5, Medium: 6.5, High: 7.5},
				},
			},
			Stats:       map[string]float64{"row_count": 120000, "ph_avg": 6.4},
			FieldValues: []string{"North of Road", "South Field"},
			Hints:       []string{"yield columns are per-harvest totals"},
		},
	}}
}

func newTestBuilder() *Builder {
	return NewBuilder("agricultural_hexes", "field_name", "h3_index")
}

func TestBuildRendersSchemaAndQuestion(t *testing.T) {
	rendered := newTestBuilder().Build(testSnapshot(), "Show me areas with low pH", nil)

	for _, want := range []string{
		"Question: Show me areas with low pH",
		`"North of Road"`,
		"- ph (DOUBLE): Soil pH",
		"row_count: 120000",
		"Hint: yield columns are per-harvest totals",
		`"expected_answer_type"`,
		`{"status": "ERROR"`,
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("prompt missing %q\n%s", want, rendered)
		}
	}
}

func TestBuildRendersEmptySnapshot(t *testing.T) {
	rendered := newTestBuilder().Build(nil, "anything", nil)
	if !strings.Contains(rendered, "(no fields defined)") {
		t.Fatalf("expected empty-field marker\n%s", rendered)
	}
	if !strings.Contains(rendered, "Question: anything") {
		t.Fatal("expected question even with empty snapshot")
	}
}

func TestBuildRendersHistory(t *testing.T) {
	history := []HistoryPair{
		{Question: "average pH?", SQL: "SELECT avg(ph) FROM agricultural_hexes"},
	}
	rendered := newTestBuilder().Build(testSnapshot(), "and by field?", history)

	if !strings.Contains(rendered, "## Recent conversation") {
		t.Fatal("expected history section")
	}
	if !strings.Contains(rendered, "SQL: SELECT avg(ph) FROM agricultural_hexes") {
		t.Fatal("expected prior sql in history")
	}

	withoutHistory := newTestBuilder().Build(testSnapshot(), "and by field?", nil)
	if strings.Contains(withoutHistory, "## Recent conversation") {
		t.Fatal("history section should be omitted when empty")
	}
}
