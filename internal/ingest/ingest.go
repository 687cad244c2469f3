// Package ingest runs the import stage: raw bulk files into SQLite, one
// checkpointed step at a time. Interrupting and re-running the pipeline
// resumes after the last completed step; a step whose input file changed
// since it ran is redone from scratch.
package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/moneytrail/moneytrail/internal/checkpoint"
	"github.com/moneytrail/moneytrail/internal/config"
	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
	"github.com/moneytrail/moneytrail/internal/refdata"
	"github.com/moneytrail/moneytrail/internal/schema"
	"github.com/moneytrail/moneytrail/internal/source"
	"github.com/moneytrail/moneytrail/internal/sourcefile"
	"github.com/moneytrail/moneytrail/internal/store"
)

// Importer drives the import stage.
type Importer struct {
	cfg      *config.Config
	db       *sql.DB
	cp       *checkpoint.Store
	resolver source.Resolver
	logger   zerolog.Logger
}

// New builds an importer over an open database and checkpoint.
func New(cfg *config.Config, db *sql.DB, cp *checkpoint.Store, resolver source.Resolver, logger zerolog.Logger) *Importer {
	return &Importer{
		cfg:      cfg,
		db:       db,
		cp:       cp,
		resolver: resolver,
		logger:   logger,
	}
}

// bulkStep binds one bulk file to its destination table. Cycle-scoped steps
// carry the cycle so a redo can clear just that cycle's rows.
type bulkStep struct {
	key   string
	kind  source.Kind
	file  string
	table schema.Table
	cycle string
}

// Run executes the full import flow. Every step consults the checkpoint
// before doing work, so Run is safe to call on a partially imported
// database.
func (im *Importer) Run(ctx context.Context) error {
	im.logger.Info().Str("run_id", im.cp.RunID).Msg("starting import stage")

	if err := im.resolver.CheckPrerequisites(ctx); err != nil {
		return err
	}

	if !im.cp.IsDone("schema", "") {
		mgr := schema.NewManager(im.db, im.logger)
		if err := mgr.CreateRawTables(); err != nil {
			return err
		}
		if err := im.cp.MarkDone("schema", ""); err != nil {
			return err
		}
	}

	if err := im.loadReferenceData(ctx); err != nil {
		return err
	}

	for _, cycle := range im.cfg.Cycles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := im.importCycle(ctx, cycle); err != nil {
			return err
		}
	}

	for _, step := range im.steps527() {
		if err := im.runBulkStep(ctx, step); err != nil {
			return err
		}
	}

	if !im.cp.IsDone("indexes", "") {
		mgr := schema.NewManager(im.db, im.logger)
		if err := mgr.CreateRawIndexes(); err != nil {
			return err
		}
		if err := im.cp.MarkDone("indexes", ""); err != nil {
			return err
		}
	}

	im.logger.Info().Msg("import stage complete")
	return nil
}

// loadReferenceData runs the cpi and categories steps. Both reference files
// are optional; only database failures abort.
func (im *Importer) loadReferenceData(ctx context.Context) error {
	if !im.cp.IsDone("cpi", "") {
		inflationPath := ""
		if p, err := im.resolver.Resolve(ctx, source.KindReference, "inflation.csv"); err == nil {
			inflationPath = p
		} else {
			im.logger.Warn().Msg("inflation.csv not found, using hardcoded cpi factors")
		}
		if err := refdata.LoadCPIFactors(im.db, inflationPath, im.logger); err != nil {
			return err
		}
		if err := im.cp.MarkDone("cpi", ""); err != nil {
			return err
		}
	}

	if !im.cp.IsDone("categories", "") {
		categoriesPath := ""
		if p, err := im.resolver.Resolve(ctx, source.KindReference, "CRP_Categories.txt"); err == nil {
			categoriesPath = p
		}
		if err := refdata.LoadCategories(im.db, categoriesPath, im.logger); err != nil {
			return err
		}
		if err := im.cp.MarkDone("categories", ""); err != nil {
			return err
		}
	}

	return nil
}

// importCycle runs the six per-cycle bulk steps in order. The two large
// streaming files (indivs, expends) come last so the cheap steps complete
// early on a fresh run.
func (im *Importer) importCycle(ctx context.Context, cycle string) error {
	yy := config.CycleSuffix(cycle)
	steps := []bulkStep{
		{"candidates_" + yy, source.KindCampaignFinance, yy + "cands.txt", schema.Candidates, cycle},
		{"committees_" + yy, source.KindCampaignFinance, yy + "cmtes.txt", schema.Committees, cycle},
		{"pacs_" + yy, source.KindCampaignFinance, yy + "pacs.txt", schema.PACsToCandidates, cycle},
		{"pac_other_" + yy, source.KindCampaignFinance, yy + "pac_other.txt", schema.PACToPAC, cycle},
		{"indivs_" + yy, source.KindCampaignFinance, yy + "indivs.txt", schema.IndividualContributions, cycle},
		{"expends_" + yy, source.KindExpend, yy + "expends.txt", schema.Expenditures, cycle},
	}

	for _, step := range steps {
		if err := im.runBulkStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// steps527 returns the three single-file 527 steps. These files span all
// cycles, so a redo clears the whole table.
func (im *Importer) steps527() []bulkStep {
	return []bulkStep{
		{"cmtes527", source.Kind527, "cmtes527.txt", schema.Cmtes527, ""},
		{"rcpts527", source.Kind527, "rcpts527.txt", schema.Receipts527, ""},
		{"expends527", source.Kind527, "expends527.txt", schema.Expenditures527, ""},
	}
}

// runBulkStep resolves, fingerprints, and loads one bulk file, honoring the
// checkpoint. Any step that is not recorded as done first clears its rows,
// so partial loads from an interrupted run and stale loads of a changed
// file are both replaced rather than appended to.
func (im *Importer) runBulkStep(ctx context.Context, step bulkStep) error {
	path, err := im.resolver.Resolve(ctx, step.kind, step.file)
	if err != nil {
		return err
	}

	fp, err := sourcefile.Fingerprint(path)
	if err != nil {
		return pkgerrors.NewInternalError(
			fmt.Sprintf("failed to fingerprint %s", path), err)
	}

	if im.cp.IsDone(step.key, fp) {
		im.logger.Info().Str("step", step.key).Msg("step already complete, skipping")
		return nil
	}

	if im.cp.IsStale(step.key, fp) {
		im.logger.Warn().Str("step", step.key).Str("file", step.file).
			Msg("input file changed since step completed, reloading")
	}

	// The table may already hold rows for this step: committed windows from
	// an interrupted earlier run, or a completed load of a since-changed
	// file. Clear them so the load starts from zero instead of appending.
	if err := im.clearStepRows(step); err != nil {
		return err
	}

	im.logger.Info().Str("step", step.key).Str("file", step.file).
		Str("table", step.table.Name).Msg("importing bulk file")

	reader, err := sourcefile.Open(path, step.table.Width(), sourcefile.DefaultOptions(), im.logger)
	if err != nil {
		return err
	}

	loader := store.NewBulkLoader(im.db, step.table.Name, step.table.Columns,
		im.cfg.Import.BatchSize, im.cfg.Import.CommitEvery, im.logger)
	n, err := loader.Load(reader)
	reader.Close()
	if err != nil {
		return err
	}

	im.logger.Info().Str("step", step.key).Int64("rows", n).
		Int64("skipped", reader.SkipCount()).Msg("bulk file imported")

	return im.cp.MarkDone(step.key, fp)
}

// clearStepRows removes rows loaded by a previous run of the step. Cycle
// tables are cleared per cycle; 527 tables are single-file and cleared in
// full.
func (im *Importer) clearStepRows(step bulkStep) error {
	var err error
	if step.cycle != "" {
		_, err = im.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE Cycle = ?", step.table.Name), step.cycle)
	} else {
		_, err = im.db.Exec(fmt.Sprintf("DELETE FROM %s", step.table.Name))
	}
	if err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			fmt.Sprintf("failed to clear stale rows from %s", step.table.Name), err)
	}
	return nil
}
