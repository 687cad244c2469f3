package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// referenceDDL creates the two reference tables. These carry real types:
// factor is used in arithmetic and Catcode is a natural primary key.
const referenceDDL = `
DROP TABLE IF EXISTS cpi_factors;
CREATE TABLE cpi_factors (
    Cycle  TEXT PRIMARY KEY,
    factor REAL NOT NULL
);

DROP TABLE IF EXISTS category_codes;
CREATE TABLE category_codes (
    Catcode    TEXT PRIMARY KEY,
    Catname    TEXT,
    Catorder   TEXT,
    Industry   TEXT,
    Sector     TEXT,
    SectorLong TEXT
);
`

// rawIndexes covers the join and filter columns the derive stage hits.
// Built after bulk loading so inserts never pay per-row index maintenance.
var rawIndexes = []struct {
	name string
	on   string
}{
	{"idx_cands_cycle", "candidates(Cycle)"},
	{"idx_cands_cid", "candidates(CID)"},
	{"idx_cands_distid", "candidates(DistIDRunFor)"},
	{"idx_cands_cycle_cid", "candidates(Cycle, CID)"},

	{"idx_cmtes_cycle", "committees(Cycle)"},
	{"idx_cmtes_cmteid", "committees(CMteID)"},
	{"idx_cmtes_primcode", "committees(PrimCode)"},

	{"idx_indivs_cycle", "individual_contributions(Cycle)"},
	{"idx_indivs_recipid", "individual_contributions(RecipID)"},
	{"idx_indivs_realcode", "individual_contributions(RealCode)"},
	{"idx_indivs_type", "individual_contributions(Type)"},
	{"idx_indivs_date", "individual_contributions(Date)"},
	{"idx_indivs_cycle_recip", "individual_contributions(Cycle, RecipID)"},

	{"idx_pacs_cycle", "pacs_to_candidates(Cycle)"},
	{"idx_pacs_candid", "pacs_to_candidates(CandID)"},
	{"idx_pacs_di", "pacs_to_candidates(DI)"},
	{"idx_pacs_type", "pacs_to_candidates(Type)"},
	{"idx_pacs_cycle_cand", "pacs_to_candidates(Cycle, CandID)"},

	{"idx_pacother_cycle", "pac_to_pac(Cycle)"},
	{"idx_pacother_recipcomm", "pac_to_pac(RecipCommID)"},

	{"idx_expends_cycle", "expenditures(Cycle)"},
	{"idx_expends_recipid", "expenditures(RecipID)"},

	{"idx_cmte527_ein", "cmtes_527(EIN)"},
	{"idx_cmte527_viewpt", "cmtes_527(ViewPt)"},
	{"idx_cmte527_ctype", "cmtes_527(Ctype)"},

	{"idx_exp527_ein", "expenditures_527(EIN)"},
	{"idx_exp527_quarter", "expenditures_527(QuarterYr)"},
	{"idx_exp527_date", "expenditures_527(Date)"},
}

// Manager executes schema DDL against the pipeline database.
type Manager struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewManager returns a schema manager for db.
func NewManager(db *sql.DB, logger zerolog.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// CreateRawTables drops and recreates all raw and reference tables. A fresh
// schema step always implies a full reload, so dropping is safe here.
func (m *Manager) CreateRawTables() error {
	m.logger.Info().Msg("creating database schema")

	if _, err := m.db.Exec(referenceDDL); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to create reference tables", err)
	}

	for _, t := range BulkTables {
		ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s; CREATE TABLE %s (\n    %s\n);",
			t.Name, t.Name, strings.Join(t.Columns, " TEXT,\n    ")+" TEXT")
		if _, err := m.db.Exec(ddl); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
				fmt.Sprintf("failed to create table %s", t.Name), err)
		}
	}

	return nil
}

// CreateRawIndexes builds the raw-table index battery and refreshes planner
// statistics.
func (m *Manager) CreateRawIndexes() error {
	m.logger.Info().Int("indexes", len(rawIndexes)).Msg("creating raw table indexes")

	for _, idx := range rawIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", idx.name, idx.on)
		if _, err := m.db.Exec(stmt); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
				fmt.Sprintf("failed to create index %s", idx.name), err)
		}
	}

	if _, err := m.db.Exec("ANALYZE"); err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to analyze database", err)
	}

	return nil
}

// TableExists reports whether a table is present in the database.
func (m *Manager) TableExists(name string) (bool, error) {
	var n int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		return false, pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			fmt.Sprintf("failed to check for table %s", name), err)
	}
	return n > 0, nil
}
