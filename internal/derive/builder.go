// Package derive builds the analytical layer on top of the raw tables:
// presidential candidates, their contribution flows tagged with a partisan
// direction, 527 expenditures aligned by committee viewpoint, and the
// monthly and weekly partisan spending time series.
package derive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
	"github.com/moneytrail/moneytrail/internal/store"
)

// requiredTables must be non-empty before the derive stage runs. An empty
// one means the import never completed.
var requiredTables = []string{
	"candidates",
	"committees",
	"individual_contributions",
	"pacs_to_candidates",
	"cpi_factors",
}

// derivedIndexes covers the filter and group-by columns of the analytical
// queries the derived layer exists to serve.
var derivedIndexes = []struct {
	name string
	on   string
}{
	{"idx_pres_cands_cycle", "pres_candidates(Cycle)"},
	{"idx_pres_cands_cid", "pres_candidates(CID)"},
	{"idx_pres_cands_party", "pres_candidates(Party)"},

	{"idx_indivs_pres_cycle", "indivs_to_pres(Cycle)"},
	{"idx_indivs_pres_party", "indivs_to_pres(RecipParty)"},
	{"idx_indivs_pres_dir", "indivs_to_pres(partisan_direction)"},
	{"idx_indivs_pres_date", "indivs_to_pres(Date)"},

	{"idx_pacs_pres_cycle", "pacs_to_pres(Cycle)"},
	{"idx_pacs_pres_di", "pacs_to_pres(DI)"},
	{"idx_pacs_pres_dir", "pacs_to_pres(partisan_direction)"},
	{"idx_pacs_pres_type", "pacs_to_pres(Type)"},
	{"idx_pacs_pres_date", "pacs_to_pres(Date)"},

	{"idx_exp527a_cycle", "exp527_aligned(Cycle)"},
	{"idx_exp527a_viewpt", "exp527_aligned(ViewPt)"},
	{"idx_exp527a_dir", "exp527_aligned(partisan_direction)"},
	{"idx_exp527a_date", "exp527_aligned(Date)"},

	{"idx_monthly_cycle", "partisan_spending_monthly(Cycle)"},
	{"idx_monthly_era", "partisan_spending_monthly(era)"},
	{"idx_monthly_dir", "partisan_spending_monthly(partisan_direction)"},
	{"idx_monthly_type", "partisan_spending_monthly(spending_type)"},

	{"idx_weekly_cycle", "partisan_spending_weekly(Cycle)"},
	{"idx_weekly_yearweek", "partisan_spending_weekly(YearWeek)"},
	{"idx_weekly_dir", "partisan_spending_weekly(partisan_direction)"},
}

// Builder drives the derive stage against an imported database.
type Builder struct {
	db     *sql.DB
	cycles []string
	logger zerolog.Logger
}

// NewBuilder returns a derive-stage builder for the configured cycles.
func NewBuilder(db *sql.DB, cycles []string, logger zerolog.Logger) *Builder {
	return &Builder{db: db, cycles: cycles, logger: logger}
}

// Run rebuilds all derived tables in dependency order. Derived tables are
// always rebuilt from scratch: they are cheap relative to the import and a
// partial rebuild is worse than a slow one.
func (b *Builder) Run(ctx context.Context) error {
	b.logger.Info().Msg("starting derive stage")

	if err := b.checkPrerequisites(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"pres_candidates", b.createPresCandidates},
		{"indivs_to_pres", b.createIndivsToPres},
		{"pacs_to_pres", b.createPACsToPres},
		{"exp527_aligned", b.createExp527Aligned},
		{"partisan_spending_monthly", func() error { return b.createTimeSeries("partisan_spending_monthly") }},
		{"partisan_spending_weekly", func() error { return b.createTimeSeries("partisan_spending_weekly") }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.fn(); err != nil {
			return err
		}
		n, err := store.TableCount(b.db, step.name)
		if err != nil {
			return err
		}
		b.logger.Info().Str("table", step.name).Int64("rows", n).Msg("derived table built")
	}

	if err := b.createIndexes(); err != nil {
		return err
	}

	b.logger.Info().Msg("derive stage complete")
	return nil
}

func (b *Builder) checkPrerequisites() error {
	for _, table := range requiredTables {
		n, err := store.TableCount(b.db, table)
		if err != nil {
			return pkgerrors.NewPrereqError(pkgerrors.CodeEmptyTable,
				fmt.Sprintf("required table %s is missing, run the import stage first", table))
		}
		if n == 0 {
			return pkgerrors.NewPrereqError(pkgerrors.CodeEmptyTable,
				fmt.Sprintf("required table %s is empty, run the import stage first", table))
		}
	}
	return nil
}

// rebuild drops and recreates one derived table.
func (b *Builder) rebuild(table, createSQL string) error {
	if _, err := b.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			fmt.Sprintf("failed to drop %s", table), err)
	}
	if _, err := b.db.Exec(createSQL); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			fmt.Sprintf("failed to create %s", table), err)
	}
	return nil
}

// createPresCandidates filters candidates to presidential races and tags
// each with its era.
func (b *Builder) createPresCandidates() error {
	return b.rebuild("pres_candidates", fmt.Sprintf(`
        CREATE TABLE pres_candidates AS
        SELECT
            Cycle,
            CID,
            FECCanID,
            CRPName,
            Party,
            DistIDRunFor,
            CycleCand,
            RecipCode,
            %s AS era
        FROM candidates
        WHERE DistIDRunFor = 'PRES'`,
		eraCaseExpr("Cycle", b.cycles)))
}

// createIndivsToPres extracts individual contributions to presidential
// candidates. The inner join on CID keeps only presidential recipients,
// which also prevents double counting: money an individual gave to a PAC
// never matches a candidate CID.
func (b *Builder) createIndivsToPres() error {
	return b.rebuild("indivs_to_pres", fmt.Sprintf(`
        CREATE TABLE indivs_to_pres AS
        SELECT
            i.Cycle,
            c.era,
            i.FECTransID,
            i.ContribID,
            i.Contributor,
            i.RecipID,
            c.Party          AS RecipParty,
            c.CRPName        AS RecipName,
            i.RealCode,
            i.Date,
            %s               AS Amount,
            %s * cf.factor   AS Amount_2024,
            i.City,
            i.State,
            i.RecipCode,
            i.Type,
            i.CmteID,
            i.Gender,
            i.Occupation,
            i.Employer,
            %s               AS partisan_direction
        FROM individual_contributions i
        INNER JOIN pres_candidates c
            ON i.RecipID = c.CID AND i.Cycle = c.Cycle
        LEFT JOIN cpi_factors cf
            ON i.Cycle = cf.Cycle
        WHERE
            (i.RealCode NOT LIKE 'Z9%%' OR i.RealCode IS NULL)
            AND (i.RealCode NOT LIKE 'Z4%%' OR i.RealCode IS NULL)
            AND i.Type IN ('10','11','15','15E','15J','22Y')`,
		realAmount("i.Amount"), realAmount("i.Amount"), partisanCaseParty))
}

// createPACsToPres merges both PAC transaction sources into one table of
// PAC money aimed at presidential candidates. The pac_to_pac branch exists
// because the FEC sometimes files PAC-to-candidate transfers there; it has
// no DI field, so DI stays NULL for those rows.
func (b *Builder) createPACsToPres() error {
	return b.rebuild("pacs_to_pres", fmt.Sprintf(`
        CREATE TABLE pacs_to_pres AS
        SELECT
            p.Cycle,
            c.era,
            p.FECTransID,
            p.CommID,
            p.CandID,
            c.Party          AS RecipParty,
            c.CRPName        AS RecipName,
            p.PrimCode,
            p.Type,
            p.DI,
            p.Date,
            %s               AS Amount,
            %s * cf.factor   AS Amount_2024,
            %s               AS partisan_direction,
            'pacs_to_candidates' AS source_table
        FROM pacs_to_candidates p
        INNER JOIN pres_candidates c
            ON p.CandID = c.CID AND p.Cycle = c.Cycle
        LEFT JOIN cpi_factors cf
            ON p.Cycle = cf.Cycle
        WHERE
            (p.PrimCode NOT LIKE 'Z9%%' OR p.PrimCode IS NULL)
            AND (p.PrimCode NOT LIKE 'Z4%%' OR p.PrimCode IS NULL)

        UNION ALL

        SELECT
            po.Cycle,
            c.era,
            po.FECTransID,
            po.CommID,
            po.RecipCommID   AS CandID,
            c.Party          AS RecipParty,
            c.CRPName        AS RecipName,
            po.PrimCode,
            po.FECType       AS Type,
            NULL             AS DI,
            po.Date,
            %s               AS Amount,
            %s * cf.factor   AS Amount_2024,
            %s               AS partisan_direction,
            'pac_to_pac'     AS source_table
        FROM pac_to_pac po
        INNER JOIN pres_candidates c
            ON po.RecipCommID = c.CID AND po.Cycle = c.Cycle
        LEFT JOIN cpi_factors cf
            ON po.Cycle = cf.Cycle
        WHERE
            (po.RealCode NOT LIKE 'Z9%%' OR po.RealCode IS NULL)
            AND (po.RealCode NOT LIKE 'Z4%%' OR po.RealCode IS NULL)`,
		realAmount("p.Amount"), realAmount("p.Amount"), partisanCasePACs,
		realAmount("po.Amount"), realAmount("po.Amount"),
		// Transfers recorded in pac_to_pac carry no against-candidate
		// transaction types, so the party mapping applies directly.
		`CASE c.Party
            WHEN 'R' THEN 'pro_R'
            WHEN 'D' THEN 'pro_D'
            ELSE 'unaligned'
        END`))
}

// createExp527Aligned joins 527 expenditures with each committee's partisan
// viewpoint. Committees file quarterly, so an EIN can carry several rows
// with diverging viewpoints; the most recent year's row wins.
func (b *Builder) createExp527Aligned() error {
	cycleExpr := cycleFromQuarterExpr(b.cycles)

	if _, err := b.db.Exec("DROP TABLE IF EXISTS _tmp_cmte527_latest"); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to drop viewpoint lookup", err)
	}
	if _, err := b.db.Exec(`
        CREATE TEMP TABLE _tmp_cmte527_latest AS
        SELECT c1.EIN, c1.ViewPt, c1.Ctype
        FROM cmtes_527 c1
        INNER JOIN (
            SELECT EIN, MAX(Year) AS MaxYear
            FROM cmtes_527
            GROUP BY EIN
        ) c2 ON c1.EIN = c2.EIN AND c1.Year = c2.MaxYear
        GROUP BY c1.EIN`); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to build viewpoint lookup", err)
	}
	if _, err := b.db.Exec(
		"CREATE INDEX IF NOT EXISTS _idx_tmp_cmte527 ON _tmp_cmte527_latest(EIN)"); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to index viewpoint lookup", err)
	}

	err := b.rebuild("exp527_aligned", fmt.Sprintf(`
        CREATE TABLE exp527_aligned AS
        SELECT
            e.QuarterYr,
            e.EIN,
            e.TransSeqNo,
            e.CMteName,
            e.PaidByEIN,
            e.PayeeLong     AS Payee,
            e.Amount,
            %s              AS Amount_real,
            e.Date,
            e.ExpCategoryCode,
            e.Description,
            e.City,
            e.State,
            cv.ViewPt,
            cv.Ctype,
            %s              AS partisan_direction,
            (%s)            AS Cycle,
            %s              AS era,
            %s * cf.factor  AS Amount_2024
        FROM expenditures_527 e
        LEFT JOIN _tmp_cmte527_latest cv ON e.EIN = cv.EIN
        LEFT JOIN cpi_factors cf ON (%s) = cf.Cycle
        WHERE
            cv.Ctype = 'F'
            AND (%s) IS NOT NULL`,
		realAmount("e.Amount"), partisanCaseViewPt,
		cycleExpr, eraCaseExpr(fmt.Sprintf("(%s)", cycleExpr), b.cycles),
		realAmount("e.Amount"), cycleExpr, cycleExpr))

	if _, dropErr := b.db.Exec("DROP TABLE IF EXISTS _tmp_cmte527_latest"); dropErr != nil && err == nil {
		err = pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to drop viewpoint lookup", dropErr)
	}
	return err
}

// seriesFlow describes one spending flow feeding the time series tables.
type seriesFlow struct {
	source       string
	spendingType string
	amount       string
	amount2024   string
	extraWhere   string
}

var seriesFlows = []seriesFlow{
	{"indivs_to_pres", "individual", "Amount", "Amount_2024", ""},
	{"pacs_to_pres", "pac_direct", "Amount", "Amount_2024", "DI = 'D'"},
	{"pacs_to_pres", "pac_independent", "Amount", "Amount_2024", "DI = 'I'"},
	{"exp527_aligned", "527", "Amount_real", "Amount_2024", ""},
}

// createTimeSeries builds the monthly or weekly aggregate table by unioning
// the four spending flows at the requested granularity. Rows with absent or
// short dates are excluded from both tables, so a bucket in one always has
// a counterpart in the other.
func (b *Builder) createTimeSeries(table string) error {
	var bucketCols, bucketGroup string
	switch table {
	case "partisan_spending_monthly":
		bucketCols = fmt.Sprintf("%s AS Year,\n            %s AS Month", yearExpr, monthExpr)
		bucketGroup = "Year, Month"
	case "partisan_spending_weekly":
		bucketCols = fmt.Sprintf("%s AS YearWeek", weekExpr)
		bucketGroup = "YearWeek"
	default:
		return pkgerrors.NewInternalError(fmt.Sprintf("unknown time series table %s", table), nil)
	}

	var blocks []string
	for _, flow := range seriesFlows {
		where := "Date IS NOT NULL AND Date != '' AND length(Date) = 10"
		if flow.extraWhere != "" {
			where = flow.extraWhere + " AND " + where
		}
		blocks = append(blocks, fmt.Sprintf(`
        SELECT
            Cycle,
            era,
            %s,
            '%s' AS spending_type,
            partisan_direction,
            SUM(%s)   AS total_amount,
            SUM(%s)   AS total_amount_2024,
            COUNT(*)  AS n_transactions
        FROM %s
        WHERE %s
        GROUP BY Cycle, era, %s, spending_type, partisan_direction`,
			bucketCols, flow.spendingType, flow.amount, flow.amount2024,
			flow.source, where, bucketGroup))
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s AS%s", table,
		joinBlocks(blocks, "\n\n        UNION ALL\n"))
	return b.rebuild(table, createSQL)
}

func joinBlocks(blocks []string, sep string) string {
	out := ""
	for i, blk := range blocks {
		if i > 0 {
			out += sep
		}
		out += blk
	}
	return out
}

func (b *Builder) createIndexes() error {
	b.logger.Info().Int("indexes", len(derivedIndexes)).Msg("creating derived table indexes")
	for _, idx := range derivedIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", idx.name, idx.on)
		if _, err := b.db.Exec(stmt); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
				fmt.Sprintf("failed to create index %s", idx.name), err)
		}
	}
	if _, err := b.db.Exec("ANALYZE"); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to analyze database", err)
	}
	return nil
}
