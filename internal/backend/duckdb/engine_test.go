package duckdb

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestExecuteStripsTrailingSemicolons(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM agricultural_hexes")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	result, err := NewWithDB(db).Execute(context.Background(), "SELECT count(*) FROM agricultural_hexes; ;")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", result.RowCount)
	}
	if got := result.Values["count"][0]; got != int64(42) {
		t.Fatalf("count = %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := NewWithDB(db).Execute(context.Background(), ";;"); err == nil {
		t.Fatal("expected error for empty sql")
	}
}
