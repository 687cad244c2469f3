package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytrail/moneytrail/internal/config"
	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
	"github.com/moneytrail/moneytrail/internal/store"
)

func e2eConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
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
			"|2004|,|T1|,|C00000001|,|N00008072|,|5000|,|03/15/2004|,|J1100|,|24K|,|D|,|RP|\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04pac_other.txt"): "" +
			"|2004|,|X1|,|C00000001|,|Some PAC|,||,||,||,||,||,|J1100|,|05/01/2004|,|1000|,|N00008072|,|R|,||,||,|J1100|,||,||,||,||,|24K|,||,||\n",
		filepath.Join(cfg.Raw.CampaignFinanceDir, "04indivs.txt"): "" +
			"|2004|,|I1|,|U001|,|SMITH, JOHN|,|N00008072|,||,||,|J1100|,|06/01/2004|,|250|,||,|HOUSTON|,|TX|,|77001|,|RP|,|15|,|C00000001|,||,|M|,||,|CEO|,|ACME|,||\n",
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

	return cfg
}

func TestRunModeAllBuildsFullDatabase(t *testing.T) {
	cfg := e2eConfig(t)
	require.NoError(t, New(cfg, zerolog.Nop()).Run(context.Background()))

	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"candidates", "individual_contributions",
		"pres_candidates", "indivs_to_pres", "pacs_to_pres",
		"exp527_aligned", "partisan_spending_monthly", "partisan_spending_weekly",
	} {
		n, err := store.TableCount(db, table)
		require.NoError(t, err, "table %s", table)
		assert.Greater(t, n, int64(0), "table %s should have rows", table)
	}

	// The PAC contribution got classified and inflation-adjusted.
	var dir string
	var adjusted float64
	require.NoError(t, db.QueryRow(
		"SELECT partisan_direction, Amount_2024 FROM pacs_to_pres WHERE FECTransID = 'T1'",
	).Scan(&dir, &adjusted))
	assert.Equal(t, "pro_R", dir)
	assert.InDelta(t, 5000*1.6653, adjusted, 1e-6)
}

func TestRunModeDeriveWithoutImportFails(t *testing.T) {
	cfg := e2eConfig(t)
	cfg.Mode = config.ModeDerive

	err := New(cfg, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCategoryPrereq, pkgerrors.GetCategory(err))
}

func TestRunModeImportThenDerive(t *testing.T) {
	cfg := e2eConfig(t)

	cfg.Mode = config.ModeImport
	require.NoError(t, New(cfg, zerolog.Nop()).Run(context.Background()))

	cfg.Mode = config.ModeDerive
	require.NoError(t, New(cfg, zerolog.Nop()).Run(context.Background()))

	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	n, err := store.TableCount(db, "partisan_spending_monthly")
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))
}

func TestRunWithResetReloadsEverything(t *testing.T) {
	cfg := e2eConfig(t)
	require.NoError(t, New(cfg, zerolog.Nop()).Run(context.Background()))

	pipeline := New(cfg, zerolog.Nop())
	pipeline.ResetCheckpoint = true
	require.NoError(t, pipeline.Run(context.Background()))

	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	// The schema step reran, so tables were rebuilt without duplication.
	n, err := store.TableCount(db, "candidates")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
