// Package schema holds the immutable dataset snapshot consumed by the prompt
// builder and the response shaper. A snapshot is constructed in full and then
// published; readers never observe a partially built one.
package schema

import (
	"context"
	"strings"
)

type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

type ColumnInfo struct {
	Name         string
	DeclaredType string
	Description  string
	Unit         string
	Thresholds   *Thresholds
	DisplayName  string
}

type TableInfo struct {
	Columns     []ColumnInfo
	Stats       map[string]float64
	FieldValues []string
	Hints       []string
	DomainFacts []string
}

// Column resolves a column by name, case-insensitively.
func (t TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return ColumnInfo{}, false
}

type Snapshot struct {
	Tables map[string]TableInfo
}

func (s *Snapshot) Table(name string) (TableInfo, bool) {
	info, ok := s.Tables[name]
	return info, ok
}

// Provider produces a snapshot. Implementations are expected to return a
// fresh value on every call; caching is the Cached wrapper's job.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}
