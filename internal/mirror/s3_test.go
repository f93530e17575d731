package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/entity"
)

type memBucket struct {
	objects map[string][]byte
}

func (b *memBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestArchived_UploadsRelativeKeys(t *testing.T) {
	dest := t.TempDir()
	file := filepath.Join(dest, "20250210", "clinicA", "fundus-photo_20250210090000.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o644))

	bucket := &memBucket{objects: map[string][]byte{}}
	m := NewS3Mirror(bucket, "reports", "ehp", dest, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rows := []entity.Report{
		{ID: uuid.New(), Addr: archive.EncodePath(file)},
		{ID: uuid.New(), Addr: archive.EncodePath(filepath.Join(dest, "missing.pdf"))},
	}
	err := m.Archived(context.Background(), rows)
	assert.Error(t, err, "the missing file is reported")

	assert.Equal(t, []byte("%PDF"), bucket.objects["reports/ehp/20250210/clinicA/fundus-photo_20250210090000.pdf"])
	assert.Len(t, bucket.objects, 1)
}
