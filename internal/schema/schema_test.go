package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/farmpulse/hexquery/internal/backend"
)

type fakeExecutor struct {
	results map[string]backend.ResultSet
	calls   []string
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (backend.ResultSet, error) {
	f.calls = append(f.calls, sqlText)
	for prefix, result := range f.results {
		if strings.HasPrefix(sqlText, prefix) {
			return result, nil
		}
	}
	return backend.ResultSet{}, fmt.Errorf("unexpected query: %s", sqlText)
}

func introspectFake() *fakeExecutor {
	return &fakeExecutor{results: map[string]backend.ResultSet{
		"SELECT column_name": {
			Columns: []string{"column_name", "data_type"},
			Values: map[string][]any{
				"column_name": {"h3_index", "field_name", "ph"},
				"data_type":   {"VARCHAR", "VARCHAR", "DOUBLE"},
			},
			RowCount: 3,
		},
		"SELECT count(*)": {
			Columns: []string{"row_count", "ph_min", "ph_max", "ph_avg"},
			Values: map[string][]any{
				"row_count": {int64(120000)},
				"ph_min":    {4.2},
				"ph_max":    {8.1},
				"ph_avg":    {6.4},
			},
			RowCount: 1,
		},
		"SELECT DISTINCT": {
			Columns:  []string{"field_name"},
			Values:   map[string][]any{"field_name": {"North of Road", "South Field"}},
			RowCount: 2,
		},
	}}
}

func TestIntrospectorBuildsSnapshot(t *testing.T) {
	meta := Metadata{
		Columns: map[string]ColumnMetadata{
			"ph": {
				Description: "Soil pH",
				DisplayName: "pH",
				Thresholds:  &Thresholds{Low: 5.5, Medium: 6.5, High: 7.5},
			},
		},
		Hints:       []string{"always include h3_index when filtering cells"},
		DomainFacts: []string{"one hex covers about 0.0015 acres"},
	}

	provider, err := NewIntrospector(introspectFake(), IntrospectConfig{
		TableName:   "agricultural_hexes",
		FieldColumn: "field_name",
		Metadata:    meta,
	})
	if err != nil {
		t.Fatalf("NewIntrospector: %v", err)
	}

	snap, err := provider.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	table, ok := snap.Table("agricultural_hexes")
	if !ok {
		t.Fatal("expected agricultural_hexes table")
	}
	if len(table.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(table.Columns))
	}

	ph, ok := table.Column("PH")
	if !ok {
		t.Fatal("expected case-insensitive ph lookup")
	}
	if ph.Description != "Soil pH" || ph.Thresholds == nil {
		t.Fatalf("metadata not merged: %+v", ph)
	}

	if got := table.Stats["row_count"]; got != 120000 {
		t.Fatalf("row_count = %v", got)
	}
	if got := table.Stats["ph_avg"]; got != 6.4 {
		t.Fatalf("ph_avg = %v", got)
	}
	if len(table.FieldValues) != 2 || table.FieldValues[0] != "North of Road" {
		t.Fatalf("field values = %v", table.FieldValues)
	}
	if len(table.Hints) != 1 || len(table.DomainFacts) != 1 {
		t.Fatalf("hints/facts not carried: %+v", table)
	}
}

func TestIntrospectorSkipsFieldValuesWithoutColumn(t *testing.T) {
	fake := introspectFake()
	provider, err := NewIntrospector(fake, IntrospectConfig{TableName: "agricultural_hexes"})
	if err != nil {
		t.Fatalf("NewIntrospector: %v", err)
	}

	snap, err := provider.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	table, _ := snap.Table("agricultural_hexes")
	if table.FieldValues != nil {
		t.Fatalf("FieldValues = %v, want nil", table.FieldValues)
	}
	for _, call := range fake.calls {
		if strings.HasPrefix(call, "SELECT DISTINCT") {
			t.Fatal("distinct query should not run without a field column")
		}
	}
}

type countingProvider struct {
	builds int
}

func (c *countingProvider) Snapshot(context.Context) (*Snapshot, error) {
	c.builds++
	return &Snapshot{Tables: map[string]TableInfo{}}, nil
}

func TestCachedBuildsOnceUntilRebuild(t *testing.T) {
	source := &countingProvider{}
	cached := NewCached(source)

	first, err := cached.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	second, err := cached.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if first != second {
		t.Fatal("expected the published snapshot to be reused")
	}
	if source.builds != 1 {
		t.Fatalf("builds = %d, want 1", source.builds)
	}

	third, err := cached.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if third == first {
		t.Fatal("expected Rebuild to publish a new snapshot")
	}
	if source.builds != 2 {
		t.Fatalf("builds = %d, want 2", source.builds)
	}
}

func TestLoadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	content := `{
		"columns": {"ph": {"description": "Soil pH", "thresholds": {"low": 5.5, "medium": 6.5, "high": 7.5}}},
		"hints": ["hint"],
		"domain_facts": ["fact"]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	meta, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.Columns["ph"].Description != "Soil pH" {
		t.Fatalf("columns = %+v", meta.Columns)
	}
	if meta.Columns["ph"].Thresholds.High != 7.5 {
		t.Fatalf("thresholds = %+v", meta.Columns["ph"].Thresholds)
	}

	if _, err := LoadMetadata(""); err != nil {
		t.Fatalf("empty path should not error: %v", err)
	}
	if _, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
