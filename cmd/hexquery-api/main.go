package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/farmpulse/hexquery/internal/api"
	"github.com/farmpulse/hexquery/internal/auth"
	"github.com/farmpulse/hexquery/internal/backend"
	duckdbengine "github.com/farmpulse/hexquery/internal/backend/duckdb"
	postgresengine "github.com/farmpulse/hexquery/internal/backend/postgres"
	"github.com/farmpulse/hexquery/internal/completion"
	"github.com/farmpulse/hexquery/internal/config"
	"github.com/farmpulse/hexquery/internal/guard"
	"github.com/farmpulse/hexquery/internal/intent"
	"github.com/farmpulse/hexquery/internal/observability"
	"github.com/farmpulse/hexquery/internal/pipeline"
	"github.com/farmpulse/hexquery/internal/prompt"
	"github.com/farmpulse/hexquery/internal/resultcache"
	s3store "github.com/farmpulse/hexquery/internal/resultcache/s3"
	"github.com/farmpulse/hexquery/internal/schema"
	"github.com/farmpulse/hexquery/internal/session"
	"github.com/farmpulse/hexquery/internal/shape"
	"github.com/farmpulse/hexquery/internal/synth"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("hexquery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	executor, estimator, closeBackend, err := openBackend(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open query backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBackend()

	metadata, err := schema.LoadMetadata(cfg.Schema.MetadataPath)
	if err != nil {
		logger.Error("failed to load schema metadata", slog.Any("error", err))
		os.Exit(1)
	}
	introspector, err := schema.NewIntrospector(executor, schema.IntrospectConfig{
		TableName:   cfg.Schema.TableName,
		FieldColumn: cfg.Schema.FieldColumn,
		Metadata:    metadata,
	})
	if err != nil {
		logger.Error("failed to build schema introspector", slog.Any("error", err))
		os.Exit(1)
	}
	schemaSource := schema.NewCached(introspector)

	completer, err := newCompleter(cfg)
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	results, err := newResultStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize result store", slog.Any("error", err))
		os.Exit(1)
	}

	service, err := pipeline.New(pipeline.Options{
		Logger:       logger,
		Schema:       schemaSource,
		Prompts:      prompt.NewBuilder(cfg.Schema.TableName, cfg.Schema.FieldColumn, cfg.Schema.SpatialKeyColumn),
		Synthesizer:  synth.New(completer),
		Classifier:   intent.New(completer),
		Validator:    guard.NewASTValidator(estimator, cfg.Guard.MaxScanBytes),
		Executor:     executor,
		Shaper:       shape.NewShaper(cfg.Schema.TableName, cfg.Schema.SpatialKeyColumn, "area"),
		Sessions:     session.NewStore(cfg.Session.HistoryPairs),
		Results:      results,
		TableName:    cfg.Schema.TableName,
		FieldColumn:  cfg.Schema.FieldColumn,
		ResultTTL:    cfg.ResultCache.TTL,
		QueryTimeout: cfg.Backend.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to assemble query pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Pipeline:          service,
		Results:           results,
		Schema:            schemaSource,
		DependencyTimeout: 2 * time.Second,
		Readiness: api.CombineReadinessChecks(
			api.CheckBackendConfig(cfg),
			api.CheckSchemaSnapshot(schemaSource),
		),
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend", cfg.Backend.Kind),
			slog.String("table", cfg.Schema.TableName))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openBackend returns the executor plus a cost estimator when the backend
// supports dry runs. DuckDB has no usable plan-cost output, so its estimator
// is nil and the guard skips the cost stage.
func openBackend(ctx context.Context, cfg config.Config) (backend.Executor, backend.Estimator, func(), error) {
	switch cfg.Backend.Kind {
	case "duckdb":
		engine, err := duckdbengine.Open(cfg.Backend.DuckDBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return engine, nil, func() { _ = engine.Close() }, nil
	case "postgres":
		engine, err := postgresengine.Open(ctx, postgresengine.Config{
			DSN:             cfg.Backend.PostgresDSN,
			MaxOpenConns:    cfg.Backend.MaxOpenConns,
			MaxIdleConns:    cfg.Backend.MaxIdleConns,
			ConnMaxIdleTime: cfg.Backend.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Backend.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return engine, engine, func() { _ = engine.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported backend kind %q", cfg.Backend.Kind)
	}
}

func newCompleter(cfg config.Config) (completion.Completer, error) {
	switch cfg.AI.Provider {
	case "openai":
		return completion.NewOpenAICompleter(completion.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	case "anthropic":
		return completion.NewAnthropicCompleter(completion.AnthropicConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}
}

func newResultStore(ctx context.Context, cfg config.Config) (resultcache.Store, error) {
	switch cfg.ResultCache.Kind {
	case "memory":
		return resultcache.NewMemoryStore(cfg.ResultCache.TTL), nil
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ResultCache.Endpoint,
			Region:           cfg.ResultCache.Region,
			Bucket:           cfg.ResultCache.Bucket,
			AccessKeyID:      cfg.ResultCache.AccessKeyID,
			SecretAccessKey:  cfg.ResultCache.SecretAccessKey,
			UseSSL:           cfg.ResultCache.UseSSL,
			Prefix:           cfg.ResultCache.Prefix,
			AutoCreateBucket: cfg.ResultCache.AutoCreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported result cache kind %q", cfg.ResultCache.Kind)
	}
}
