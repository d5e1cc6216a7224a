package export

import (
	"bytes"
	"strings"
	"testing"
)

var (
	testColumns = []string{"h3_index", "ph", "irrigated"}
	testRows    = []map[string]any{
		{"h3_index": "8e2830926d6d5d7", "ph": 6.1, "irrigated": true},
		{"h3_index": "8e2830926d6d5df", "ph": 5.4, "irrigated": false},
		{"h3_index": "8e2830926d6d5e3", "ph": nil, "irrigated": true},
	}
)

func TestCSVRendersHeaderAndRows(t *testing.T) {
	body, err := CSV(testColumns, testRows)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header + 3 rows", len(lines))
	}
	if lines[0] != "h3_index,ph,irrigated" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "8e2830926d6d5d7,6.1,true" {
		t.Fatalf("row = %q", lines[1])
	}
	if lines[3] != "8e2830926d6d5e3,,true" {
		t.Fatalf("null rendering = %q", lines[3])
	}
}

func TestParquetProducesValidFile(t *testing.T) {
	body, err := Parquet(testColumns, testRows)
	if err != nil {
		t.Fatalf("Parquet: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("PAR1")) || !bytes.HasSuffix(body, []byte("PAR1")) {
		t.Fatal("expected parquet magic at both ends")
	}
}

func TestExportRequiresColumns(t *testing.T) {
	if _, err := CSV(nil, testRows); err == nil {
		t.Fatal("expected error without columns")
	}
	if _, err := Parquet(nil, testRows); err == nil {
		t.Fatal("expected error without columns")
	}
}
