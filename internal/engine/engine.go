// Package engine orchestrates the reporting pipeline: extraction from
// the warehouse, metric derivation, summary building, and workbook
// writing. Stages run strictly in sequence and the first error aborts
// the run.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldscope-labs/fieldscope/internal/config"
	"github.com/fieldscope-labs/fieldscope/internal/derive"
	"github.com/fieldscope-labs/fieldscope/internal/extract"
	"github.com/fieldscope-labs/fieldscope/internal/report"
	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/summary"
	"github.com/fieldscope-labs/fieldscope/internal/warehouse"
	"github.com/google/uuid"
)

// Engine wires the pipeline stages together for one configuration.
type Engine struct {
	cfg    *config.Config
	source warehouse.Adapter
	store  *staging.Store
	logger *slog.Logger
}

// New creates an engine: it opens the staging store and connects the
// warehouse adapter named by the configuration. A nil logger uses a
// discard logger.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	config.ApplyDefaults(cfg)

	store, err := staging.Open(cfg.Staging.Driver, cfg.Staging.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging store: %w", err)
	}

	whCfg := warehouse.Config{
		Type:     cfg.Warehouse.Type,
		Host:     cfg.Warehouse.Host,
		Port:     cfg.Warehouse.Port,
		User:     cfg.Warehouse.User,
		Password: cfg.Warehouse.Password,
		Catalog:  cfg.Warehouse.Catalog,
		Schema:   cfg.Warehouse.Schema,
	}
	source, err := warehouse.New(whCfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := source.Connect(ctx, whCfg); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect warehouse: %w", err)
	}

	return &Engine{cfg: cfg, source: source, store: store, logger: logger}, nil
}

// NewWithDeps creates an engine from pre-built collaborators. Used by
// tests and by callers that manage their own connections.
func NewWithDeps(cfg *config.Config, source warehouse.Adapter, store *staging.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	config.ApplyDefaults(cfg)
	return &Engine{cfg: cfg, source: source, store: store, logger: logger}
}

// Store exposes the staging store for stage-level commands.
func (e *Engine) Store() *staging.Store { return e.store }

// Close releases the warehouse connection and the staging store.
func (e *Engine) Close() error {
	var firstErr error
	if e.source != nil {
		if err := e.source.Close(); err != nil {
			firstErr = err
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run executes the full pipeline: schema reset, extraction, derivation,
// then summary build plus workbook per product line.
func (e *Engine) Run(ctx context.Context) error {
	runID := uuid.New().String()
	logger := e.logger.With("run_id", runID)
	started := time.Now()
	logger.Info("pipeline starting", "products", e.cfg.Products)

	if err := e.store.InitSchema(ctx); err != nil {
		return err
	}
	if err := e.timed(ctx, logger, "extract", e.Extract); err != nil {
		return err
	}
	if err := e.timed(ctx, logger, "derive", e.Derive); err != nil {
		return err
	}

	for _, product := range e.cfg.Products {
		plog := logger.With("product", product)
		stageStart := time.Now()
		if err := e.Summarize(ctx, product); err != nil {
			return err
		}
		path, err := e.Report(ctx, product)
		if err != nil {
			return err
		}
		plog.Info("product reported", "path", path, "elapsed", time.Since(stageStart))
	}

	logger.Info("pipeline complete", "elapsed", time.Since(started))
	return nil
}

func (e *Engine) timed(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	start := time.Now()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s stage failed: %w", name, err)
	}
	logger.Info("stage complete", "stage", name, "elapsed", time.Since(start))
	return nil
}

// Extract runs the extraction stage against the warehouse.
func (e *Engine) Extract(ctx context.Context) error {
	return extract.NewStage(e.source, e.store, e.cfg.Products, e.logger).Run(ctx)
}

// Derive runs the derivation stage over the staged working set.
func (e *Engine) Derive(ctx context.Context) error {
	return derive.New(e.store, e.logger).Run(ctx)
}

// Summarize builds both summary tables for one product line.
func (e *Engine) Summarize(ctx context.Context, product string) error {
	b := summary.NewBuilder(e.store, e.logger)
	if err := b.BuildInstallationSummary(ctx, product); err != nil {
		return fmt.Errorf("failed to build installation summary for %s: %w", product, err)
	}
	if err := b.BuildAccountSummary(ctx, product); err != nil {
		return fmt.Errorf("failed to build account summary for %s: %w", product, err)
	}
	return nil
}

// Report writes the workbook for one product line from the current
// summary tables and returns its path.
func (e *Engine) Report(ctx context.Context, product string) (string, error) {
	return report.NewWriter(e.store, e.cfg.Report.OutputDir, e.logger).Write(ctx, product)
}
