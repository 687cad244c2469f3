package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytrail/moneytrail/internal/checkpoint"
	"github.com/moneytrail/moneytrail/internal/config"
	"github.com/moneytrail/moneytrail/internal/source"
	"github.com/moneytrail/moneytrail/internal/store"
)

// fixture builds a one-cycle raw layout with a handful of rows per file.
type fixture struct {
	cfg *config.Config
	db  *sql.DB
	cp  *checkpoint.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = base
	cfg.Cycles = []string{"2004"}
	cfg.Import.BatchSize = 2
	cfg.Import.CommitEvery = 4
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	files := map[string]string{
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04cands.txt"): "" +
			"|2004|,|P04003338|,|N00008072|,|Bush, George W|,|R|,|PRES|,|PRES|,|Y|,|Y|,|I|,|RP|,||\n" +
			"|2004|,|P80000235|,|N00004357|,|Kerry, John|,|D|,|PRES|,|PRES|,|Y|,|Y|,|C|,|DP|,||\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04cmtes.txt"): "" +
			"|2004|,|C00000001|,|Some PAC|,||,||,|N00008072|,|J1100|,||,|R|,|J1100|,||,||,||,||\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04pacs.txt"): "" +
			"|2004|,|T1|,|C00000001|,|N00008072|,|5000|,|03/15/2004|,|J1100|,|24K|,|D|,|RP|\n" +
			"|2004|,|T2|,|C00000001|,|N00004357|,|2500|,|04/01/2004|,|J1100|,|24K|,|D|,|DP|\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04pac_other.txt"): "" +
			"|2004|,|X1|,|C00000001|,|Some PAC|,||,||,||,||,||,|J1100|,|05/01/2004|,|1000|,|N00008072|,|R|,||,||,|J1100|,||,||,||,||,|24K|,||,||\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04indivs.txt"): "" +
			"|2004|,|I1|,|U001|,|SMITH, JOHN|,|N00008072|,||,||,|J1100|,|06/01/2004|,|250|,||,|HOUSTON|,|TX|,|77001|,|RP|,|15|,|C00000001|,||,|M|,||,|CEO|,|ACME|,||\n" +
			"|2004|,|I2|,|U002|,|DOE, JANE|,|N00004357|,||,||,|J1100|,|06/02/2004|,|500|,||,|BOSTON|,|MA|,|02101|,|DP|,|15|,|C00000002|,||,|F|,||,|VP|,|ACME|,||\n" +
			"|2004|,|I3|,|U003|,|ROE, RICHARD|,|N00008072|,||,||,|J1100|,|06/03/2004|,|100|,||,|DALLAS|,|TX|,|75201|,|RP|,|15|,|C00000001|,||,|M|,||,||,||,||\n",
		filepath.Join(cfg.Raw.ExpendDir, "04expends.txt"): "" +
			"|2004|,|1|,|E1|,|N00008072|,|RP|,|Some Cmte|,|Vendor|,||,|1000|,|07/01/2004|,|AUSTIN|,|TX|,|78701|,||,||,||,||,||,|J1100|,||,||,||\n",
		filepath.Join(cfg.Raw.Dir527, "cmtes527.txt"): "" +
			"|2004|,|Q404|,|123456789|,|Org One|,|ORG1|,|Org One Cmte|,||,||,||,||,||,|J1100|,||,||,|F|,||,|C|,||,|TX|\n",
		filepath.Join(cfg.Raw.Dir527, "rcpts527.txt"): "" +
			"|Q404|,|123456789|,|F1|,||,|ORG1|,|Org One|,||,|AUSTIN|,|TX|,|78701|,|1000|,|08/01/2004|,||,||,||,||\n",
		filepath.Join(cfg.Raw.Dir527, "expends527.txt"): "" +
			"|Q404|,|123456789|,|S1|,|Org One Cmte|,||,|VEND|,|Vendor Long|,|2000|,|09/01/2004|,||,||,|Media buy|,||,||,|AUSTIN|,|TX|,|78701|,||,||\n",
		filepath.Join(cfg.Raw.ReferenceDir, "inflation.csv"): "2004, 100, 166.53\n",
		filepath.Join(cfg.Raw.ReferenceDir, "CRP_Categories.txt"): "" +
			"J1100\tRepublican/Conservative\tJ1\tIdeology\tJ\tIdeology/Single-Issue\n",
	}
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cp, err := checkpoint.Load(cfg.CheckpointPath)
	require.NoError(t, err)

	return &fixture{cfg: cfg, db: db, cp: cp}
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	imp := New(f.cfg, f.db, f.cp, source.NewLocal(f.cfg.Raw), zerolog.Nop())
	require.NoError(t, imp.Run(context.Background()))
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	n, err := store.TableCount(f.db, table)
	require.NoError(t, err)
	return n
}

func TestImportLoadsAllTables(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	assert.Equal(t, int64(2), f.count(t, "candidates"))
	assert.Equal(t, int64(1), f.count(t, "committees"))
	assert.Equal(t, int64(2), f.count(t, "pacs_to_candidates"))
	assert.Equal(t, int64(1), f.count(t, "pac_to_pac"))
	assert.Equal(t, int64(3), f.count(t, "individual_contributions"))
	assert.Equal(t, int64(1), f.count(t, "expenditures"))
	assert.Equal(t, int64(1), f.count(t, "cmtes_527"))
	assert.Equal(t, int64(1), f.count(t, "receipts_527"))
	assert.Equal(t, int64(1), f.count(t, "expenditures_527"))
	assert.Equal(t, int64(1), f.count(t, "category_codes"))

	// inflation.csv refresh applied over the hardcoded default.
	var factor float64
	require.NoError(t, f.db.QueryRow(
		"SELECT factor FROM cpi_factors WHERE Cycle = '2004'").Scan(&factor))
	assert.InDelta(t, 1.6653, factor, 1e-9)
}

func TestImportIsIdempotentAcrossRuns(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.run(t)

	assert.Equal(t, int64(2), f.count(t, "candidates"))
	assert.Equal(t, int64(3), f.count(t, "individual_contributions"))
	assert.Equal(t, int64(1), f.count(t, "cmtes_527"))
}

func TestImportReloadsChangedFile(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	// Replace the candidates file with a different single row.
	path := filepath.Join(f.cfg.Raw.CampaignFinanceDir, "04cands.txt")
	replacement := "|2004|,|P99999999|,|N00099999|,|New, Candidate|,|I|,|PRES|,|PRES|,|Y|,|Y|,|O|,|IP|,||\n"
	require.NoError(t, os.WriteFile(path, []byte(replacement), 0644))

	f.run(t)

	assert.Equal(t, int64(1), f.count(t, "candidates"))
	var cid string
	require.NoError(t, f.db.QueryRow("SELECT CID FROM candidates").Scan(&cid))
	assert.Equal(t, "N00099999", cid)

	// Untouched tables keep their rows.
	assert.Equal(t, int64(3), f.count(t, "individual_contributions"))
}

func TestImportRerunsInterruptedStepWithoutDuplication(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	// Simulate a crash between the last committed batch and MarkDone: the
	// table holds the step's rows but the checkpoint has no record of it.
	delete(f.cp.Steps, "candidates_04")
	delete(f.cp.Steps, "cmtes527")

	f.run(t)

	assert.Equal(t, int64(2), f.count(t, "candidates"))
	assert.Equal(t, int64(1), f.count(t, "cmtes_527"))
	// Steps that stayed done were not reloaded either.
	assert.Equal(t, int64(3), f.count(t, "individual_contributions"))
}

func TestImportFailsOnMissingDirectory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.cfg.Raw.Dir527))

	imp := New(f.cfg, f.db, f.cp, source.NewLocal(f.cfg.Raw), zerolog.Nop())
	err := imp.Run(context.Background())
	assert.Error(t, err)
}

func TestImportResumesAfterCheckpointReload(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	// A fresh checkpoint store over the same file sees completed steps.
	cp, err := checkpoint.Load(f.cfg.CheckpointPath)
	require.NoError(t, err)
	assert.True(t, cp.IsDone("schema", ""))
	assert.True(t, cp.IsDone("indexes", ""))
	assert.False(t, cp.IsDone("candidates_08", ""))

	f.cp = cp
	f.run(t)
	assert.Equal(t, int64(2), f.count(t, "candidates"))
}
