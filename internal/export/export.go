// Package export renders cached result rows as parquet or CSV for download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// Parquet encodes rows with one optional column per result column. Column
// types are deduced from the first non-nil value; anything that is not a
// number or bool is written as a string.
func Parquet(columns []string, rows []map[string]any) ([]byte, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}

	group := parquet.Group{}
	for _, name := range columns {
		group[name] = parquet.Optional(columnNode(name, rows))
	}
	schema := parquet.NewSchema("result", group)

	converted := make([]map[string]any, len(rows))
	for i, row := range rows {
		out := make(map[string]any, len(columns))
		for _, name := range columns {
			out[name] = coerceValue(name, row[name], rows)
		}
		converted[i] = out
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[map[string]any](&buf, schema)
	if _, err := writer.Write(converted); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// CSV encodes rows with a header line in column order.
func CSV(columns []string, rows []map[string]any) ([]byte, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, name := range columns {
			record[i] = renderValue(row[name])
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func columnNode(name string, rows []map[string]any) parquet.Node {
	switch firstValue(name, rows).(type) {
	case float64, float32:
		return parquet.Leaf(parquet.DoubleType)
	case int, int32, int64:
		return parquet.Int(64)
	case bool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func coerceValue(name string, value any, rows []map[string]any) any {
	if value == nil {
		return nil
	}
	switch firstValue(name, rows).(type) {
	case float64, float32:
		switch typed := value.(type) {
		case float64:
			return typed
		case float32:
			return float64(typed)
		case int64:
			return float64(typed)
		case int:
			return float64(typed)
		}
		return nil
	case int, int32, int64:
		switch typed := value.(type) {
		case int64:
			return typed
		case int32:
			return int64(typed)
		case int:
			return int64(typed)
		case float64:
			return int64(typed)
		}
		return nil
	case bool:
		if typed, ok := value.(bool); ok {
			return typed
		}
		return nil
	default:
		return renderValue(value)
	}
}

func firstValue(name string, rows []map[string]any) any {
	for _, row := range rows {
		if value := row[name]; value != nil {
			return value
		}
	}
	return nil
}

func renderValue(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}
