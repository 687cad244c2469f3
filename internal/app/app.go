// Package app wires the pipeline stages together: open the database and
// checkpoint, run the import and/or derive stage per the configured mode,
// and report validation results.
package app

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/moneytrail/moneytrail/internal/checkpoint"
	"github.com/moneytrail/moneytrail/internal/config"
	"github.com/moneytrail/moneytrail/internal/derive"
	"github.com/moneytrail/moneytrail/internal/ingest"
	"github.com/moneytrail/moneytrail/internal/source"
	"github.com/moneytrail/moneytrail/internal/store"
	"github.com/moneytrail/moneytrail/internal/validate"
)

// App is the assembled pipeline.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	// ResetCheckpoint discards recorded progress before the import stage,
	// forcing a full reload.
	ResetCheckpoint bool
}

// New builds the pipeline for a validated configuration.
func New(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run executes the configured stages and returns the first fatal error.
// Validation findings are logged, never returned.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}

	db, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if a.cfg.ShouldRunImport() {
		if err := a.runImport(ctx, db); err != nil {
			return err
		}
	}

	if a.cfg.ShouldRunDerive() {
		if err := a.runDerive(ctx, db); err != nil {
			return err
		}
	}

	a.logger.Info().Str("db", a.cfg.DBPath).Msg("pipeline finished")
	return nil
}

func (a *App) runImport(ctx context.Context, db *sql.DB) error {
	cp, err := checkpoint.Load(a.cfg.CheckpointPath)
	if err != nil {
		return err
	}
	if a.ResetCheckpoint {
		a.logger.Warn().Msg("resetting checkpoint, all steps will rerun")
		if err := cp.Reset(); err != nil {
			return err
		}
	}

	resolver, err := source.New(ctx, a.cfg)
	if err != nil {
		return err
	}

	importer := ingest.New(a.cfg, db, cp, resolver, a.logger)
	if err := importer.Run(ctx); err != nil {
		return err
	}

	report := validate.CheckImport(db, a.cfg.Cycles, validate.DefaultThresholds(), a.logger)
	if report.AnyFailed() {
		a.logger.Warn().Int("failed", report.Failed).
			Msg("import validation found problems, inspect before trusting the data")
	}
	return nil
}

func (a *App) runDerive(ctx context.Context, db *sql.DB) error {
	builder := derive.NewBuilder(db, a.cfg.Cycles, a.logger)
	if err := builder.Run(ctx); err != nil {
		return err
	}

	report := validate.CheckDerived(db, a.cfg.Cycles, a.logger)
	if report.AnyFailed() {
		a.logger.Warn().Int("failed", report.Failed).
			Msg("derive validation found problems, inspect before trusting the data")
	}
	return nil
}
