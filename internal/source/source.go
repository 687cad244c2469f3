// Package source resolves raw bulk files to local paths the parser can
// stream. Files live either on the local filesystem or in an S3 bucket;
// S3 objects are staged into a scratch directory before parsing, since the
// import makes a sequential full pass and SQLite lives locally anyway.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/moneytrail/moneytrail/internal/config"
	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// Resolver turns a (directory kind, file name) pair into a local path.
type Resolver interface {
	// Resolve returns a local path for the named file under the given raw
	// directory. A missing file is a prerequisite error.
	Resolve(ctx context.Context, dir Kind, name string) (string, error)
	// CheckPrerequisites verifies the input layout before any work starts.
	CheckPrerequisites(ctx context.Context) error
}

// Kind names one of the raw input directories.
type Kind int

const (
	KindCampaignFinance Kind = iota
	KindExpend
	Kind527
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindCampaignFinance:
		return "campaign_finance"
	case KindExpend:
		return "expend"
	case Kind527:
		return "527"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// New builds the resolver selected by the source configuration.
func New(ctx context.Context, cfg *config.Config) (Resolver, error) {
	switch cfg.Source.Type {
	case "local":
		return NewLocal(cfg.Raw), nil
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("source: unknown source type %q", cfg.Source.Type)
	}
}

// statLocal checks that a resolved local path exists and is a regular file.
func statLocal(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return pkgerrors.NewPrereqError(pkgerrors.CodeMissingFile,
			fmt.Sprintf("required input file not found: %s", path))
	}
	if info.IsDir() {
		return pkgerrors.NewPrereqError(pkgerrors.CodeMissingFile,
			fmt.Sprintf("%s is a directory, expected a file", path))
	}
	return nil
}
