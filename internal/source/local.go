package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moneytrail/moneytrail/internal/config"
	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// Local resolves files directly out of the configured raw directories.
type Local struct {
	raw config.RawConfig
}

// NewLocal returns a resolver over the local raw layout.
func NewLocal(raw config.RawConfig) *Local {
	return &Local{raw: raw}
}

func (l *Local) dirFor(kind Kind) string {
	switch kind {
	case KindCampaignFinance:
		return l.raw.CampaignFinanceDir
	case KindExpend:
		return l.raw.ExpendDir
	case Kind527:
		return l.raw.Dir527
	default:
		return l.raw.ReferenceDir
	}
}

// Resolve joins the raw directory with the file name and verifies it exists.
func (l *Local) Resolve(_ context.Context, kind Kind, name string) (string, error) {
	path := filepath.Join(l.dirFor(kind), name)
	if err := statLocal(path); err != nil {
		return "", err
	}
	return path, nil
}

// CheckPrerequisites verifies every raw input directory exists before the
// import touches the database.
func (l *Local) CheckPrerequisites(_ context.Context) error {
	for _, kind := range []Kind{KindCampaignFinance, KindExpend, Kind527, KindReference} {
		dir := l.dirFor(kind)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return pkgerrors.NewPrereqError(pkgerrors.CodeMissingDirectory,
				fmt.Sprintf("required input directory not found: %s (%s)", dir, kind))
		}
	}
	return nil
}
