package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/farmpulse/hexquery/internal/guard"
	"github.com/farmpulse/hexquery/internal/pipeline"
)

type queryRequest struct {
	Question       string `json:"question"`
	SessionID      string `json:"session_id"`
	IncludeContext bool   `json:"include_context"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "question is required", false, nil)
		return
	}

	bundle, err := deps.Pipeline.Query(r.Context(), pipeline.Request{
		Question:     req.Question,
		SessionID:    req.SessionID,
		WantsContext: req.IncludeContext,
	})
	if err != nil {
		writeQueryError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

func handleQuerySQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}

	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "sql is required", false, nil)
		return
	}

	bundle, err := deps.Pipeline.ExecuteSQL(r.Context(), req.SQL)
	if err != nil {
		writeQueryError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type clearHistoryRequest struct {
	SessionID string `json:"session_id"`
}

func handleClearHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}

	var req clearHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "session_id is required", false, nil)
		return
	}

	deps.Pipeline.ClearHistory(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "session_id": req.SessionID})
}

// writeQueryError maps pipeline failures onto HTTP statuses. Guard
// rejections are client errors; backend refusals are retryable upstream
// failures.
func writeQueryError(ctx context.Context, w http.ResponseWriter, err error) {
	var qerr *pipeline.QueryError
	if !errors.As(err, &qerr) {
		writeError(ctx, w, http.StatusBadGateway, "PIPELINE_FAILED", err.Error(), true, nil)
		return
	}

	code := strings.ToUpper(qerr.Kind)
	switch qerr.Kind {
	case pipeline.KindRefusal, pipeline.KindMalformedOutput:
		writeError(ctx, w, http.StatusUnprocessableEntity, code, qerr.Detail, false, nil)
	case string(guard.RejectCostExceeded):
		writeError(ctx, w, http.StatusBadRequest, code, qerr.Detail, false, map[string]any{
			"estimated_bytes": qerr.EstimatedBytes,
		})
	case string(guard.RejectBackendRejected):
		writeError(ctx, w, http.StatusBadGateway, code, qerr.Detail, true, nil)
	default:
		writeError(ctx, w, http.StatusBadRequest, code, qerr.Detail, false, nil)
	}
}
