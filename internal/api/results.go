package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/farmpulse/hexquery/internal/export"
	"github.com/farmpulse/hexquery/internal/pipeline"
	"github.com/farmpulse/hexquery/internal/resultcache"
)

func handleListResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Results == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE", "result store is not configured", true, nil)
		return
	}

	ids, err := deps.Results.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "RESULTS_LIST_FAILED", err.Error(), true, nil)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result_ids": ids, "count": len(ids)})
}

func handleGetResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Results == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE", "result store is not configured", true, nil)
		return
	}

	id := r.PathValue("id")
	payload, err := deps.Results.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, resultcache.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "RESULT_NOT_FOUND", fmt.Sprintf("no result with id %q", id), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "RESULTS_GET_FAILED", err.Error(), true, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func handleDeleteResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Results == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE", "result store is not configured", true, nil)
		return
	}

	id := r.PathValue("id")
	if err := deps.Results.Delete(r.Context(), id); err != nil {
		if errors.Is(err, resultcache.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "RESULT_NOT_FOUND", fmt.Sprintf("no result with id %q", id), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "RESULTS_DELETE_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "result_id": id})
}

func handleExportResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Results == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE", "result store is not configured", true, nil)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", "format must be parquet or csv", false, nil)
		return
	}

	id := r.PathValue("id")
	payload, err := deps.Results.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, resultcache.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "RESULT_NOT_FOUND", fmt.Sprintf("no result with id %q", id), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "RESULTS_GET_FAILED", err.Error(), true, nil)
		return
	}

	var bundle pipeline.ResponseBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RESULT_CORRUPT", "cached bundle could not be decoded", false, nil)
		return
	}
	if len(bundle.Columns) == 0 {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "RESULT_NOT_EXPORTABLE", "cached bundle has no tabular results", false, nil)
		return
	}

	var body []byte
	var contentType string
	switch format {
	case "parquet":
		body, err = export.Parquet(bundle.Columns, bundle.Results)
		contentType = "application/vnd.apache.parquet"
	case "csv":
		body, err = export.CSV(bundle.Columns, bundle.Results)
		contentType = "text/csv"
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), false, nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
