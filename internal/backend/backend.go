package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ResultSet is a column-oriented materialization of a query result. Every
// column slice has exactly RowCount entries and Columns preserves the
// projection order of the statement.
type ResultSet struct {
	Columns  []string
	Values   map[string][]any
	RowCount int
	Duration time.Duration
}

// Row returns row i as a name→value map in no particular key order.
func (rs ResultSet) Row(i int) map[string]any {
	row := make(map[string]any, len(rs.Columns))
	for _, name := range rs.Columns {
		row[name] = rs.Values[name][i]
	}
	return row
}

// HasColumn reports whether the result projects the named column.
func (rs ResultSet) HasColumn(name string) bool {
	_, ok := rs.Values[name]
	return ok
}

// Executor runs a validated statement and materializes the full result.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (ResultSet, error)
}

// Estimator reports the bytes a statement would scan without executing it.
// Backends without dry-run support simply do not implement it.
type Estimator interface {
	EstimateScanBytes(ctx context.Context, sqlText string) (int64, error)
}

// Collect drains rows into a ResultSet. Shared by the duckdb and postgres
// executors, which both run over database/sql.
func Collect(rows *sql.Rows) (ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return ResultSet{}, fmt.Errorf("result columns: %w", err)
	}

	values := make(map[string][]any, len(columns))
	for _, name := range columns {
		values[name] = []any{}
	}

	rowCount := 0
	for rows.Next() {
		scanned := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range scanned {
			targets[i] = &scanned[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return ResultSet{}, fmt.Errorf("scan row: %w", err)
		}
		for i, name := range columns {
			values[name] = append(values[name], normalizeValue(scanned[i]))
		}
		rowCount++
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}

	return ResultSet{Columns: columns, Values: values, RowCount: rowCount}, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
