// Package shape derives the presentation layer of a query result: view
// type, spatial keys, column display metadata, scatter series, and a one
// line summary. Shaping is a pure function of the result set and the schema
// snapshot.
package shape

import (
	"fmt"
	"strings"

	"github.com/farmpulse/hexquery/internal/backend"
	"github.com/farmpulse/hexquery/internal/schema"
	"github.com/farmpulse/hexquery/internal/synth"
)

const (
	ViewMap   = "map"
	ViewTable = "table"
)

// acresPerCell is the area of one H3 resolution-14 cell in acres.
const acresPerCell = 0.0015487

var aggregatePrefixes = []string{"total_", "avg_", "sum_", "min_", "max_", "count_"}

type ColumnMeta struct {
	DisplayName string `json:"display_name"`
	Unit        string `json:"unit,omitempty"`
}

type ScatterPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shaped is the derived presentation bundle. ViewType is empty for a single
// scalar-ish row.
type Shaped struct {
	ViewType       string
	SpatialKeys    []string
	Summary        string
	ColumnMetadata map[string]ColumnMeta
	ScatterData    []ScatterPoint
}

type Shaper struct {
	tableName        string
	spatialKeyColumn string
	areaColumn       string
}

func NewShaper(tableName, spatialKeyColumn, areaColumn string) *Shaper {
	return &Shaper{
		tableName:        tableName,
		spatialKeyColumn: spatialKeyColumn,
		areaColumn:       areaColumn,
	}
}

func (s *Shaper) Shape(result backend.ResultSet, snap *schema.Snapshot, answerKind synth.AnswerKind) Shaped {
	var table schema.TableInfo
	if snap != nil {
		table, _ = snap.Table(s.tableName)
	}

	shaped := Shaped{
		SpatialKeys:    s.spatialKeys(result),
		ColumnMetadata: s.columnMetadata(result, table),
	}

	switch {
	case result.HasColumn(s.spatialKeyColumn):
		shaped.ViewType = ViewMap
	case result.RowCount > 1:
		shaped.ViewType = ViewTable
	}

	shaped.Summary = s.summarize(result, shaped)

	if answerKind == synth.AnswerRelational {
		shaped.ScatterData = scatterSeries(result)
	}

	return shaped
}

func (s *Shaper) spatialKeys(result backend.ResultSet) []string {
	if !result.HasColumn(s.spatialKeyColumn) {
		return nil
	}
	keys := make([]string, 0, result.RowCount)
	for _, value := range result.Values[s.spatialKeyColumn] {
		keys = append(keys, fmt.Sprintf("%v", value))
	}
	return keys
}

func (s *Shaper) columnMetadata(result backend.ResultSet, table schema.TableInfo) map[string]ColumnMeta {
	meta := make(map[string]ColumnMeta, len(result.Columns))
	for _, name := range result.Columns {
		meta[name] = resolveColumn(name, table)
	}
	return meta
}

// resolveColumn maps a result column to display metadata: exact schema
// match first, then an aggregate-prefix strip and retry, then a title-cased
// fallback on the raw name.
func resolveColumn(name string, table schema.TableInfo) ColumnMeta {
	if col, ok := table.Column(name); ok {
		return ColumnMeta{DisplayName: displayName(col), Unit: col.Unit}
	}

	lower := strings.ToLower(name)
	for _, prefix := range aggregatePrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if col, ok := table.Column(name[len(prefix):]); ok {
			label := titleCase(strings.TrimSuffix(prefix, "_"))
			return ColumnMeta{
				DisplayName: label + " " + displayName(col),
				Unit:        col.Unit,
			}
		}
	}

	return ColumnMeta{DisplayName: titleCase(name)}
}

func displayName(col schema.ColumnInfo) string {
	if col.DisplayName != "" {
		return col.DisplayName
	}
	return titleCase(col.Name)
}

func (s *Shaper) summarize(result backend.ResultSet, shaped Shaped) string {
	switch {
	case result.RowCount == 0:
		return "No results found."
	case shaped.ViewType == ViewMap:
		return fmt.Sprintf("%d hexes covering about %.1f acres.", result.RowCount, s.acreage(result))
	case result.RowCount == 1 && len(result.Columns) == 1:
		return fmt.Sprintf("%v", result.Values[result.Columns[0]][0])
	case result.RowCount == 1:
		parts := make([]string, 0, len(result.Columns))
		for _, name := range result.Columns {
			parts = append(parts, fmt.Sprintf("%s: %v", name, result.Values[name][0]))
		}
		return strings.Join(parts, " | ")
	default:
		return fmt.Sprintf("%d results", result.RowCount)
	}
}

// acreage prefers the result's own area column when the query selected it;
// otherwise it derives area from the cell count and the fixed per-cell
// constant.
func (s *Shaper) acreage(result backend.ResultSet) float64 {
	if result.HasColumn(s.areaColumn) {
		total := 0.0
		for _, value := range result.Values[s.areaColumn] {
			if v, ok := asFloat(value); ok {
				total += v
			}
		}
		return total
	}
	return float64(result.RowCount) * acresPerCell
}

// scatterSeries pairs the first two numeric columns row by row.
func scatterSeries(result backend.ResultSet) []ScatterPoint {
	numeric := make([]string, 0, 2)
	for _, name := range result.Columns {
		if result.RowCount == 0 {
			break
		}
		if _, ok := asFloat(result.Values[name][0]); ok {
			numeric = append(numeric, name)
			if len(numeric) == 2 {
				break
			}
		}
	}
	if len(numeric) < 2 {
		return nil
	}

	points := make([]ScatterPoint, 0, result.RowCount)
	for i := 0; i < result.RowCount; i++ {
		x, okX := asFloat(result.Values[numeric[0]][i])
		y, okY := asFloat(result.Values[numeric[1]][i])
		if okX && okY {
			points = append(points, ScatterPoint{X: x, Y: y})
		}
	}
	return points
}

func titleCase(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == ' ' })
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
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
