// Package app wires the lakehouse: DuckDB engine, run-history metastore,
// pipeline service, scheduler and HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register the duckdb driver

	"lakehouse/internal/api"
	"lakehouse/internal/config"
	internaldb "lakehouse/internal/db"
	"lakehouse/internal/db/repository"
	"lakehouse/internal/engine"
	"lakehouse/internal/middleware"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/service/pipeline"
	"lakehouse/internal/service/quality"
	"lakehouse/internal/service/refine"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	DuckDB *sql.DB
	Meta   *internaldb.Metastore
	Logger *slog.Logger
}

// App holds the fully wired application.
type App struct {
	Cfg          *config.Config
	Environments *config.Environments
	Store        *engine.DuckDBStore
	Runs         *repository.RunRepo
	Quality      *repository.QualityRepo
	Service      *pipeline.Service
	Scheduler    *pipeline.Scheduler

	duck   *sql.DB
	meta   *internaldb.Metastore
	logger *slog.Logger
}

// New wires repositories, engines and the pipeline service from deps and
// attaches the catalogs of every environment.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg, logger := deps.Cfg, deps.Logger
	envs := config.NewEnvironments(cfg.ConfigDir)

	if err := attachCatalogs(ctx, deps.DuckDB, envs, catalogDir(cfg.DuckDBPath), logger); err != nil {
		return nil, err
	}

	runs := repository.NewRunRepo(deps.Meta.Write, deps.Meta.Read)
	results := repository.NewQualityRepo(deps.Meta.Write, deps.Meta.Read)
	store := engine.NewDuckDBStore(deps.DuckDB, logger.With("component", "store"))

	components := pipeline.Components{
		Store:           store,
		Extract:         extract.NewEngine(engine.NewDuckDBSource(deps.DuckDB), store, logger.With("component", "extract")),
		Refine:          refine.NewEngine(store, logger.With("component", "refine")),
		Quality:         quality.NewEngine(store, cfg.FreshnessThreshold, logger.With("component", "quality")),
		Results:         results,
		QualityPolicy:   quality.Policy{FailOn: cfg.QualityFailOn},
		QualityCritical: cfg.QualityCritical,
		StageTimeout:    cfg.StageTimeout,
	}
	orch := pipeline.NewOrchestrator(runs, cfg.MaxParallelStages, cfg.StageTimeout, logger.With("component", "orchestrator"))
	svc := pipeline.NewService(pipeline.DefaultRegistry(components), orch, envs, runs, results, logger.With("component", "pipeline"))

	return &App{
		Cfg:          cfg,
		Environments: envs,
		Store:        store,
		Runs:         runs,
		Quality:      results,
		Service:      svc,
		Scheduler:    pipeline.NewScheduler(svc, cfg.LakehouseEnv, logger.With("component", "scheduler")),
		duck:         deps.DuckDB,
		meta:         deps.Meta,
		logger:       logger,
	}, nil
}

// Open opens DuckDB and the metastore named by cfg and wires an App that owns
// both.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	duck, err := sql.Open("duckdb", duckDBPath(cfg.DuckDBPath))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := duck.PingContext(ctx); err != nil {
		_ = duck.Close()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	meta, err := internaldb.OpenMetastore(cfg.MetaDBPath)
	if err != nil {
		_ = duck.Close()
		return nil, err
	}
	a, err := New(ctx, Deps{Cfg: cfg, DuckDB: duck, Meta: meta, Logger: logger})
	if err != nil {
		_ = meta.Close()
		_ = duck.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for background runs and releases both databases.
func (a *App) Close() error {
	a.Service.Wait()
	return errors.Join(a.meta.Close(), a.duck.Close())
}

// Router builds the HTTP API. OIDC takes precedence over a shared secret;
// with neither configured, triggering is unauthenticated.
func (a *App) Router(ctx context.Context) (http.Handler, error) {
	var validator middleware.TokenValidator
	switch {
	case a.Cfg.OIDCIssuerURL != "":
		v, err := middleware.NewOIDCValidator(ctx, a.Cfg.OIDCIssuerURL, a.Cfg.OIDCAudience)
		if err != nil {
			return nil, err
		}
		validator = v
	case a.Cfg.JWTSecret != "":
		validator = middleware.NewSharedSecretValidator(a.Cfg.JWTSecret)
	default:
		a.logger.Warn("run triggering is unauthenticated; set JWT_SECRET or OIDC_ISSUER_URL")
	}

	h := api.NewHandler(a.Service, a.Cfg.LakehouseEnv, a.logger.With("component", "api"))
	return api.NewRouter(ctx, h, api.RouterConfig{
		AllowedOrigins: a.Cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.Cfg.RateLimitRPS,
			Burst:             a.Cfg.RateLimitBurst,
		},
		Validator: validator,
	}, a.logger), nil
}

// duckDBPath maps ":memory:" to the driver's in-memory DSN.
func duckDBPath(p string) string {
	if p == ":memory:" {
		return ""
	}
	return p
}

// catalogDir is where catalog files live: beside the main DuckDB file, or
// in memory when that file is.
func catalogDir(duckPath string) string {
	if duckPath == "" || duckPath == ":memory:" {
		return ""
	}
	return filepath.Dir(duckPath)
}
