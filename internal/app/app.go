// Package app provides application-level wiring and dependency injection
// for the lineage server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"catalog-lineage/internal/api"
	"catalog-lineage/internal/config"
	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/db/repository"
	"catalog-lineage/internal/middleware"
	"catalog-lineage/internal/retry"
	"catalog-lineage/internal/service/ingestion"
	"catalog-lineage/internal/service/lineage"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Dialect internaldb.Dialect
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Lineage    *lineage.LineageService
	Reconciler *ingestion.ReconciliationService
	Scheduler  *ingestion.Scheduler
	Handler    *api.Handler

	cfg    *config.Config
	logger *slog.Logger
}

// New wires repositories and services from the provided deps. It does not
// start the scheduler.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// === Repositories ===
	graphRepo := repository.NewGraphRepo(deps.WriteDB, deps.ReadDB, deps.Dialect)
	runRepo := repository.NewReconciliationRunRepo(deps.WriteDB, deps.Dialect)

	// === Services ===
	lineageSvc := lineage.NewLineageService(graphRepo, lineage.Config{
		MaxDepth:     cfg.Lineage.MaxDepth,
		QueryTimeout: cfg.Lineage.QueryTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Lineage.ReadAttempts,
			BaseDelay:   cfg.Lineage.ReadBackoff,
			MaxDelay:    cfg.Lineage.ReadBackoff * 8,
		},
	}, logger)

	reconciler := ingestion.NewReconciliationService(graphRepo, runRepo, ingestion.Config{
		Workers: cfg.Ingest.Workers,
		Retry: retry.Policy{
			MaxAttempts: cfg.Ingest.MaxAttempts,
			BaseDelay:   cfg.Ingest.BaseBackoff,
			MaxDelay:    cfg.Ingest.MaxBackoff,
		},
	}, logger)

	if cfg.SeedDemo {
		if err := seedDemoGraph(ctx, reconciler); err != nil {
			logger.Warn("seed demo graph failed", "error", err)
		}
	}

	return &App{
		Lineage:    lineageSvc,
		Reconciler: reconciler,
		Scheduler:  ingestion.NewScheduler(reconciler, logger),
		Handler:    api.NewHandler(lineageSvc, reconciler, deps.ReadDB, logger),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Router returns the HTTP handler with the configured middleware stack.
func (a *App) Router() http.Handler {
	return api.NewRouter(a.Handler, api.RouterConfig{
		CORSOrigins: a.cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimit.RPS,
			Burst:             a.cfg.RateLimit.Burst,
		},
	}, a.logger)
}

// ManifestSources converts the configured schedules.
func (a *App) ManifestSources() []ingestion.ManifestSource {
	out := make([]ingestion.ManifestSource, len(a.cfg.Schedules))
	for i, s := range a.cfg.Schedules {
		out[i] = ingestion.ManifestSource{
			Name:      s.Name,
			Schedule:  s.Cron,
			Path:      s.Path,
			Workspace: s.Workspace,
			Resource:  s.Resource,
		}
	}
	return out
}
