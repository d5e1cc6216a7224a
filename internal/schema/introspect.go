package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/farmpulse/hexquery/internal/backend"
)

type IntrospectConfig struct {
	TableName   string
	FieldColumn string
	Metadata    Metadata
}

// Introspector builds a snapshot by querying the backend's information
// schema, row statistics, and the distinct set of field values. It works
// against any backend.Executor; the table and column names come from trusted
// configuration, never from user input.
type Introspector struct {
	exec backend.Executor
	cfg  IntrospectConfig
}

func NewIntrospector(exec backend.Executor, cfg IntrospectConfig) (*Introspector, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &Introspector{exec: exec, cfg: cfg}, nil
}

func (p *Introspector) Snapshot(ctx context.Context) (*Snapshot, error) {
	columns, err := p.fetchColumns(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := p.fetchStats(ctx, columns)
	if err != nil {
		return nil, err
	}

	var fieldValues []string
	if p.cfg.FieldColumn != "" {
		fieldValues, err = p.fetchFieldValues(ctx)
		if err != nil {
			return nil, err
		}
	}

	table := TableInfo{
		Columns:     columns,
		Stats:       stats,
		FieldValues: fieldValues,
		Hints:       p.cfg.Metadata.Hints,
		DomainFacts: p.cfg.Metadata.DomainFacts,
	}

	return &Snapshot{Tables: map[string]TableInfo{p.cfg.TableName: table}}, nil
}

func (p *Introspector) fetchColumns(ctx context.Context) ([]ColumnInfo, error) {
	query := fmt.Sprintf(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = '%s' ORDER BY ordinal_position",
		escapeLiteral(p.cfg.TableName),
	)
	result, err := p.exec.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	if result.RowCount == 0 {
		return nil, fmt.Errorf("table %q has no columns", p.cfg.TableName)
	}

	columns := make([]ColumnInfo, 0, result.RowCount)
	for i := 0; i < result.RowCount; i++ {
		name := asString(result.Values["column_name"][i])
		col := ColumnInfo{
			Name:         name,
			DeclaredType: asString(result.Values["data_type"][i]),
		}
		if meta, ok := p.cfg.Metadata.Columns[strings.ToLower(name)]; ok {
			col.Description = meta.Description
			col.Unit = meta.Unit
			col.DisplayName = meta.DisplayName
			col.Thresholds = meta.Thresholds
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (p *Introspector) fetchStats(ctx context.Context, columns []ColumnInfo) (map[string]float64, error) {
	selects := []string{"count(*) AS row_count"}
	for _, col := range columns {
		if !isNumericType(col.DeclaredType) {
			continue
		}
		selects = append(selects,
			fmt.Sprintf("min(%s) AS %s_min", col.Name, col.Name),
			fmt.Sprintf("max(%s) AS %s_max", col.Name, col.Name),
			fmt.Sprintf("avg(%s) AS %s_avg", col.Name, col.Name),
		)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), p.cfg.TableName)
	result, err := p.exec.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect stats: %w", err)
	}
	if result.RowCount != 1 {
		return nil, fmt.Errorf("introspect stats: expected one row, got %d", result.RowCount)
	}

	stats := make(map[string]float64, len(result.Columns))
	for _, name := range result.Columns {
		if value, ok := asFloat(result.Values[name][0]); ok {
			stats[name] = value
		}
	}
	return stats, nil
}

func (p *Introspector) fetchFieldValues(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1",
		p.cfg.FieldColumn, p.cfg.TableName, p.cfg.FieldColumn,
	)
	result, err := p.exec.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect field values: %w", err)
	}

	values := make([]string, 0, result.RowCount)
	for i := 0; i < result.RowCount; i++ {
		if v := asString(result.Values[p.cfg.FieldColumn][i]); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

func isNumericType(declared string) bool {
	upper := strings.ToUpper(declared)
	for _, marker := range []string{"INT", "DOUBLE", "FLOAT", "DECIMAL", "NUMERIC", "REAL"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func escapeLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int:
		return float64(typed), true
	default:
		return 0, false
	}
}
