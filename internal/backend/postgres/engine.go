package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/farmpulse/hexquery/internal/backend"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Engine executes statements against Postgres. Unlike the duckdb engine it
// supports dry-run cost estimation through EXPLAIN, so the guard can enforce
// its scan-byte ceiling before anything runs.
type Engine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Engine{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
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
	sqlText = strings.TrimSpace(sqlText)
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

// EstimateScanBytes runs a plan-only EXPLAIN and derives a byte estimate
// from the planner's row count and row width. The statement is never
// executed.
func (e *Engine) EstimateScanBytes(ctx context.Context, sqlText string) (int64, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return 0, fmt.Errorf("sql is required")
	}

	var rawPlan string
	row := e.db.QueryRowContext(ctx, "EXPLAIN (FORMAT JSON) "+sqlText)
	if err := row.Scan(&rawPlan); err != nil {
		return 0, fmt.Errorf("explain query: %w", err)
	}

	var parsed []struct {
		Plan struct {
			PlanRows  float64 `json:"Plan Rows"`
			PlanWidth float64 `json:"Plan Width"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(rawPlan), &parsed); err != nil {
		return 0, fmt.Errorf("decode explain output: %w", err)
	}
	if len(parsed) == 0 {
		return 0, fmt.Errorf("empty explain output")
	}

	estimate := int64(parsed[0].Plan.PlanRows * parsed[0].Plan.PlanWidth)
	if estimate < 0 {
		estimate = 0
	}
	return estimate, nil
}
