package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/moneytrail/moneytrail/internal/config"
	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// S3 stages bulk files from an S3 bucket into the local scratch directory.
// Objects are laid out as <prefix>/<dir kind>/<file name>. A file already
// staged in scratch is reused, so resumed runs do not re-download.
type S3 struct {
	client  *s3.Client
	bucket  string
	prefix  string
	scratch string
}

// NewS3 builds an S3 resolver from the pipeline configuration.
func NewS3(ctx context.Context, cfg *config.Config) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Source.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Source.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Source.S3.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Source.S3.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:  cfg.Source.S3.Bucket,
		prefix:  cfg.Source.S3.Prefix,
		scratch: cfg.Source.ScratchDir,
	}, nil
}

func (s *S3) key(kind Kind, name string) string {
	return path.Join(s.prefix, kind.String(), name)
}

// Resolve downloads the object into scratch (unless already staged) and
// returns the local path.
func (s *S3) Resolve(ctx context.Context, kind Kind, name string) (string, error) {
	local := filepath.Join(s.scratch, kind.String(), name)
	if err := statLocal(local); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return "", fmt.Errorf("source: failed to create scratch directory: %w", err)
	}

	key := s.key(kind, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", pkgerrors.NewPrereqError(pkgerrors.CodeMissingFile,
				fmt.Sprintf("required input object not found: s3://%s/%s", s.bucket, key))
		}
		return "", fmt.Errorf("source: failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	// Download to a temp name first so a partial download never looks staged.
	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("source: failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("source: failed to download s3://%s/%s: %w", s.bucket, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("source: failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, local); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("source: failed to stage %s: %w", local, err)
	}

	return local, nil
}

// CheckPrerequisites verifies the bucket is reachable and the prefix holds
// at least one object.
func (s *S3) CheckPrerequisites(ctx context.Context) error {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return pkgerrors.NewPrereqError(pkgerrors.CodeMissingDirectory,
			fmt.Sprintf("cannot list s3://%s/%s: %v", s.bucket, s.prefix, err))
	}
	if len(out.Contents) == 0 {
		return pkgerrors.NewPrereqError(pkgerrors.CodeMissingDirectory,
			fmt.Sprintf("no input objects under s3://%s/%s", s.bucket, s.prefix))
	}
	return nil
}
