// Package prompt renders the schema snapshot, query-writing rules, and
// conversation history into the single prompt string handed to the
// completion service. Rendering is pure; it never fails, even on an empty
// snapshot.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/farmpulse/hexquery/internal/schema"
)

// HistoryPair is one prior (question, sql) exchange surfaced as context.
type HistoryPair struct {
	Question string
	SQL      string
}

type Builder struct {
	tableName        string
	fieldColumn      string
	spatialKeyColumn string
}

func NewBuilder(tableName, fieldColumn, spatialKeyColumn string) *Builder {
	return &Builder{
		tableName:        tableName,
		fieldColumn:      fieldColumn,
		spatialKeyColumn: spatialKeyColumn,
	}
}

func (b *Builder) Build(snap *schema.Snapshot, question string, history []HistoryPair) string {
	var sb strings.Builder

	sb.WriteString("You are an expert agronomist and SQL analyst. Answer questions about a hexagonal-grid agricultural dataset by writing a single SQL query.\n\n")
	sb.WriteString(fmt.Sprintf("The only table is %s. Each row is one H3 hexagonal cell identified by the %s column.\n\n", b.tableName, b.spatialKeyColumn))

	b.writeSchema(&sb, snap)
	b.writeRules(&sb)
	b.writeOutputContract(&sb)
	b.writeExamples(&sb)
	b.writeHistory(&sb, history)

	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n")
	return sb.String()
}

func (b *Builder) writeSchema(sb *strings.Builder, snap *schema.Snapshot) {
	var table schema.TableInfo
	if snap != nil {
		table, _ = snap.Table(b.tableName)
	}

	sb.WriteString("## Columns\n")
	if len(table.Columns) == 0 {
		sb.WriteString("(no columns introspected)\n")
	}
	for _, col := range table.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s)", col.Name, col.DeclaredType))
		if col.Description != "" {
			sb.WriteString(": " + col.Description)
		}
		if col.Unit != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", col.Unit))
		}
		if col.Thresholds != nil {
			sb.WriteString(fmt.Sprintf(" (low < %g, medium %g-%g, high > %g)",
				col.Thresholds.Low, col.Thresholds.Low, col.Thresholds.High, col.Thresholds.High))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(table.Stats) > 0 {
		sb.WriteString("## Dataset statistics\n")
		for _, key := range sortedKeys(table.Stats) {
			sb.WriteString(fmt.Sprintf("- %s: %g\n", key, table.Stats[key]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Valid field names\n")
	if len(table.FieldValues) == 0 {
		sb.WriteString("(no fields defined)\n")
	}
	for _, value := range table.FieldValues {
		sb.WriteString(fmt.Sprintf("- %q\n", value))
	}
	sb.WriteString("Field names must be used verbatim from this list; never invent one.\n\n")

	for _, hint := range table.Hints {
		sb.WriteString("Hint: " + hint + "\n")
	}
	for _, fact := range table.DomainFacts {
		sb.WriteString("Fact: " + fact + "\n")
	}
	if len(table.Hints)+len(table.DomainFacts) > 0 {
		sb.WriteString("\n")
	}
}

func (b *Builder) writeRules(sb *strings.Builder) {
	sb.WriteString("## Query rules\n")
	sb.WriteString(fmt.Sprintf("- Reference the %s table exactly once and no other table.\n", b.tableName))
	sb.WriteString("- Project only the columns the question needs.\n")
	sb.WriteString(fmt.Sprintf("- When filtering or returning individual cells, always include the %s column in the projection.\n", b.spatialKeyColumn))
	sb.WriteString(fmt.Sprintf("- Map questions must filter on the %s column with an exact value from the valid field list.\n", b.fieldColumn))
	sb.WriteString("- Distinguish rates from totals: per-acre questions use rate columns, whole-field questions aggregate totals.\n")
	sb.WriteString("- SELECT statements only. Never write, alter, or drop anything.\n\n")
}

func (b *Builder) writeOutputContract(sb *strings.Builder) {
	sb.WriteString("## Output format\n")
	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString(`{"sql_query": "<SQL>", "sql_summary": "<one sentence>", "expected_answer_type": "MAP" | "TABLE" | "SCATTERPLOT"}` + "\n")
	sb.WriteString("If the question asks for a map but names no field, respond instead with:\n")
	sb.WriteString(`{"status": "ERROR", "error_details": "<which field name is needed>"}` + "\n\n")
}

func (b *Builder) writeExamples(sb *strings.Builder) {
	sb.WriteString("## Examples\n")
	sb.WriteString("Q: Show me areas with low phosphorus in the North of Road field\n")
	sb.WriteString(fmt.Sprintf(`A: {"sql_query": "SELECT %s, phosphorus_ppm FROM %s WHERE %s = 'North of Road' AND phosphorus_ppm < 20", "sql_summary": "Cells in North of Road with phosphorus below 20 ppm.", "expected_answer_type": "MAP"}`,
		b.spatialKeyColumn, b.tableName, b.fieldColumn))
	sb.WriteString("\n")
	sb.WriteString("Q: What's the average pH by field?\n")
	sb.WriteString(fmt.Sprintf(`A: {"sql_query": "SELECT %s, avg(ph) AS avg_ph FROM %s GROUP BY %s ORDER BY %s", "sql_summary": "Average soil pH per field.", "expected_answer_type": "TABLE"}`,
		b.fieldColumn, b.tableName, b.fieldColumn, b.fieldColumn))
	sb.WriteString("\n\n")
}

func (b *Builder) writeHistory(sb *strings.Builder, history []HistoryPair) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("## Recent conversation\n")
	for _, pair := range history {
		sb.WriteString("Q: " + pair.Question + "\n")
		sb.WriteString("SQL: " + pair.SQL + "\n")
	}
	sb.WriteString("\n")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
