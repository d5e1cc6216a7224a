package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/farmpulse/hexquery/internal/backend"
)

// Engine executes statements against a local DuckDB database file. DuckDB
// has no dry-run facility, so the engine deliberately does not implement
// backend.Estimator; the guard's statement checks still apply in full.
type Engine struct {
	db *sql.DB
}

func Open(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests and the schema provider.
func NewWithDB(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Engine) Execute(ctx context.Context, sqlText string) (backend.ResultSet, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return backend.ResultSet{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return backend.ResultSet{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := backend.Collect(rows)
	if err != nil {
		return backend.ResultSet{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
