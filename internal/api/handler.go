// Package api exposes the guarded query pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmpulse/hexquery/internal/config"
	"github.com/farmpulse/hexquery/internal/observability"
	"github.com/farmpulse/hexquery/internal/pipeline"
	"github.com/farmpulse/hexquery/internal/resultcache"
	"github.com/farmpulse/hexquery/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

// QueryService is the pipeline surface the handlers need.
type QueryService interface {
	Query(ctx context.Context, req pipeline.Request) (pipeline.ResponseBundle, error)
	ExecuteSQL(ctx context.Context, sqlText string) (pipeline.ResponseBundle, error)
	ClearHistory(sessionID string)
}

// SchemaAdmin is the read-plus-rebuild surface of the cached schema
// provider.
type SchemaAdmin interface {
	Snapshot(ctx context.Context) (*schema.Snapshot, error)
	Rebuild(ctx context.Context) (*schema.Snapshot, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Pipeline          QueryService
	Results           resultcache.Store
	Schema            SchemaAdmin
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleGetSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/schema/rebuild", func(w http.ResponseWriter, r *http.Request) {
		handleRebuildSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/sql", func(w http.ResponseWriter, r *http.Request) {
		handleQuerySQL(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/clear-history", func(w http.ResponseWriter, r *http.Request) {
		handleClearHistory(deps, w, r)
	})
	protected.HandleFunc("GET /v1/results", func(w http.ResponseWriter, r *http.Request) {
		handleListResults(deps, w, r)
	})
	protected.HandleFunc("GET /v1/results/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetResult(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/results/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteResult(deps, w, r)
	})
	protected.HandleFunc("GET /v1/results/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExportResult(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/schema/rebuild", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/query/sql", protectedHandler)
	mux.Handle("POST /v1/query/clear-history", protectedHandler)
	mux.Handle("GET /v1/results", protectedHandler)
	mux.Handle("GET /v1/results/{id}", protectedHandler)
	mux.Handle("DELETE /v1/results/{id}", protectedHandler)
	mux.Handle("GET /v1/results/{id}/export", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.CORSMiddleware(cfg.HTTP.AllowedOrigins),
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckBackendConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch cfg.Backend.Kind {
		case "duckdb":
			if cfg.Backend.DuckDBPath == "" {
				return errors.New("duckdb path is not configured")
			}
		case "postgres":
			if cfg.Backend.PostgresDSN == "" {
				return errors.New("postgres dsn is not configured")
			}
		}
		return nil
	}
}

func CheckSchemaSnapshot(source SchemaAdmin) ReadinessCheck {
	return func(ctx context.Context) error {
		if source == nil {
			return errors.New("schema provider is not configured")
		}
		_, err := source.Snapshot(ctx)
		return err
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
