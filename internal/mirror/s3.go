// Package mirror copies archived report files to object storage.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/entity"
)

type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain.
// Path-style addressing keeps MinIO and similar on-prem stores working.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	}), nil
}

// S3Mirror uploads each archived file under prefix, keyed by its path
// relative to the archive root.
type S3Mirror struct {
	client   ObjectPutter
	bucket   string
	prefix   string
	destRoot string
	logger   *slog.Logger
}

func NewS3Mirror(client ObjectPutter, bucket, prefix, destRoot string, logger *slog.Logger) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix, destRoot: destRoot, logger: logger}
}

// Key returns the object key for an archived file.
func (m *S3Mirror) Key(file string) (string, error) {
	rel, err := filepath.Rel(m.destRoot, file)
	if err != nil {
		return "", err
	}
	return path.Join(m.prefix, filepath.ToSlash(rel)), nil
}

// Archived uploads every row's file. Failures are logged and the first one
// is returned after all rows are attempted.
func (m *S3Mirror) Archived(ctx context.Context, rows []entity.Report) error {
	var first error
	for _, r := range rows {
		if err := m.put(ctx, archive.DecodePath(r.Addr)); err != nil {
			m.logger.Error("mirror upload failed", "report_id", r.ID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *S3Mirror) put(ctx context.Context, file string) error {
	key, err := m.Key(file)
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}
	m.logger.Debug("report mirrored", "bucket", m.bucket, "key", key)
	return nil
}
