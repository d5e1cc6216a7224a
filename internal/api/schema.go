package api

import (
	"net/http"

	"github.com/farmpulse/hexquery/internal/schema"
)

type schemaColumnView struct {
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Unit        string             `json:"unit,omitempty"`
	DisplayName string             `json:"display_name,omitempty"`
	Thresholds  *schema.Thresholds `json:"thresholds,omitempty"`
}

type schemaTableView struct {
	Name        string             `json:"name"`
	Columns     []schemaColumnView `json:"columns"`
	Stats       map[string]float64 `json:"stats,omitempty"`
	FieldValues []string           `json:"field_values,omitempty"`
	Hints       []string           `json:"hints,omitempty"`
	DomainFacts []string           `json:"domain_facts,omitempty"`
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema provider is not configured", true, nil)
		return
	}

	snap, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_FETCH_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": snapshotView(snap)})
}

func handleRebuildSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema provider is not configured", true, nil)
		return
	}

	snap, err := deps.Schema.Rebuild(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_REBUILD_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rebuilt", "tables": snapshotView(snap)})
}

func snapshotView(snap *schema.Snapshot) []schemaTableView {
	views := make([]schemaTableView, 0, len(snap.Tables))
	for name, table := range snap.Tables {
		view := schemaTableView{
			Name:        name,
			Columns:     make([]schemaColumnView, 0, len(table.Columns)),
			Stats:       table.Stats,
			FieldValues: table.FieldValues,
			Hints:       table.Hints,
			DomainFacts: table.DomainFacts,
		}
		for _, col := range table.Columns {
			view.Columns = append(view.Columns, schemaColumnView{
				Name:        col.Name,
				Type:        col.DeclaredType,
				Description: col.Description,
				Unit:        col.Unit,
				DisplayName: col.DisplayName,
				Thresholds:  col.Thresholds,
			})
		}
		views = append(views, view)
	}
	return views
}
