// Package validate runs advisory sanity checks over the imported and
// derived tables. Failures are logged and counted, never fatal: the checks
// exist to flag suspicious data, not to block it.
package validate

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Report summarizes one validation run.
type Report struct {
	Passed int
	Failed int
}

// AnyFailed reports whether any check failed.
func (r Report) AnyFailed() bool {
	return r.Failed > 0
}

// Thresholds holds the minimum row counts CheckImport expects from the
// single-file tables. A complete bulk download lands well above the
// defaults, so a count below them almost always means a truncated import.
type Thresholds struct {
	CategoryCodes   float64
	Cmtes527        float64
	Receipts527     float64
	Expenditures527 float64
}

// DefaultThresholds returns the expectations for a complete bulk download.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CategoryCodes:   200,
		Cmtes527:        1000,
		Receipts527:     100000,
		Expenditures527: 100000,
	}
}

// knownPresidential maps well-known presidential candidate CIDs to names.
// Their absence after an import almost always means a truncated or
// mis-parsed candidates file.
var knownPresidential = map[string]string{
	"N00008072": "George W. Bush",
	"N00004357": "John Kerry",
	"N00009638": "Barack Obama",
	"N00006424": "John McCain",
	"N00000286": "Mitt Romney",
	"N00001669": "Joe Biden",
	"N00023864": "Donald Trump",
}

// checker accumulates pass/fail results with uniform logging.
type checker struct {
	db     *sql.DB
	logger zerolog.Logger
	report Report
}

// scalar runs a single-value query; a query error counts as a failure.
func (c *checker) scalar(query string, args ...interface{}) (float64, bool) {
	var v sql.NullFloat64
	if err := c.db.QueryRow(query, args...).Scan(&v); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("validation query failed")
		c.report.Failed++
		return 0, false
	}
	return v.Float64, true
}

func (c *checker) atLeast(label, query string, min float64) {
	v, ok := c.scalar(query)
	if !ok {
		return
	}
	c.record(label, v, v >= min, fmt.Sprintf(">= %g", min))
}

func (c *checker) equals(label, query string, expected float64) {
	v, ok := c.scalar(query)
	if !ok {
		return
	}
	c.record(label, v, v == expected, fmt.Sprintf("== %g", expected))
}

func (c *checker) record(label string, value float64, ok bool, expectation string) {
	if ok {
		c.report.Passed++
		c.logger.Info().Str("check", label).Float64("value", value).Msg("PASS")
		return
	}
	c.report.Failed++
	c.logger.Warn().Str("check", label).Float64("value", value).
		Str("expected", expectation).Msg("FAIL")
}

// CheckImport verifies the raw tables after the import stage: per-cycle row
// counts, reference table sizes, and presence of known presidential
// candidates.
func CheckImport(db *sql.DB, cycles []string, th Thresholds, logger zerolog.Logger) Report {
	c := &checker{db: db, logger: logger.With().Str("suite", "import").Logger()}

	cycleTables := []string{
		"candidates",
		"committees",
		"individual_contributions",
		"pacs_to_candidates",
		"pac_to_pac",
		"expenditures",
	}
	for _, table := range cycleTables {
		for _, cycle := range cycles {
			c.atLeast(
				fmt.Sprintf("%s has rows for cycle %s", table, cycle),
				fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE Cycle = '%s'", table, cycle),
				1)
		}
	}

	singles := map[string]float64{
		"cpi_factors":      4,
		"category_codes":   th.CategoryCodes,
		"cmtes_527":        th.Cmtes527,
		"receipts_527":     th.Receipts527,
		"expenditures_527": th.Expenditures527,
	}
	for table, min := range singles {
		c.atLeast(
			fmt.Sprintf("%s row count", table),
			"SELECT COUNT(*) FROM "+table,
			min)
	}

	for cid, name := range knownPresidential {
		v, ok := c.scalar(
			"SELECT COUNT(*) FROM candidates WHERE CID = ? AND DistIDRunFor = 'PRES'", cid)
		if !ok {
			continue
		}
		c.record(fmt.Sprintf("candidate present: %s (%s)", name, cid), v, v > 0, "> 0")
	}

	logSummary(c, logger)
	return c.report
}

// CheckDerived verifies the derived layer: era domains, partisan coverage,
// cycle coverage, and the anti-double-counting invariant.
func CheckDerived(db *sql.DB, cycles []string, logger zerolog.Logger) Report {
	c := &checker{db: db, logger: logger.With().Str("suite", "derive").Logger()}

	c.atLeast("pres_candidates has rows",
		"SELECT COUNT(*) FROM pres_candidates", 5)
	c.equals("pres_candidates spans both eras",
		"SELECT COUNT(DISTINCT era) FROM pres_candidates", 2)

	// Candidate CIDs start with 'N'; committee IDs start with 'C'. A 'C'
	// recipient in indivs_to_pres would mean the join leaked PAC money in.
	c.equals("no PAC recipients in indivs_to_pres",
		"SELECT COUNT(*) FROM indivs_to_pres WHERE RecipID LIKE 'C%'", 0)

	c.equals("indivs_to_pres has only known eras",
		"SELECT COUNT(*) FROM indivs_to_pres WHERE era NOT IN ('pre_CU','post_CU')", 0)
	c.equals("pacs_to_pres has only known eras",
		"SELECT COUNT(*) FROM pacs_to_pres WHERE era NOT IN ('pre_CU','post_CU')", 0)

	c.atLeast("indivs partisan coverage",
		`SELECT CAST(SUM(CASE WHEN partisan_direction IN ('pro_R','pro_D') THEN 1 ELSE 0 END) AS REAL)
		 / COUNT(*) FROM indivs_to_pres`, 0.90)

	c.equals("exp527_aligned covers all cycles",
		"SELECT COUNT(DISTINCT Cycle) FROM exp527_aligned", float64(len(cycles)))

	c.atLeast("partisan_spending_monthly has rows",
		"SELECT COUNT(*) FROM partisan_spending_monthly", 1)
	c.atLeast("partisan_spending_weekly has rows",
		"SELECT COUNT(*) FROM partisan_spending_weekly", 1)

	logSummary(c, logger)
	return c.report
}

func logSummary(c *checker, logger zerolog.Logger) {
	logger.Info().Int("passed", c.report.Passed).Int("failed", c.report.Failed).
		Msg("validation complete")
}
