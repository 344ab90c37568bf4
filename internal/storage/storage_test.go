package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/recallpro/auth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryObjects) EnsureBucket(context.Context) error { return nil }

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Bucket() string { return "test" }

func (m *memoryObjects) Close() error { return nil }

func TestReportArchive_SaveAndLoad(t *testing.T) {
	objects := newMemoryObjects()
	archive := NewReportArchive(objects, "/sweeps/")

	started := time.Date(2026, 10, 18, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	report := SweepReport{
		ID:           "abc",
		Trigger:      "queue",
		MessageID:    "m-1",
		StartedAt:    started,
		FinishedAt:   started.Add(time.Second),
		DeletedCount: 12,
	}

	key, err := archive.Save(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "sweeps/2026/10/18/20261018T073000Z-abc.json", key)
	assert.Equal(t, "application/json", objects.contentTypes[key])

	loaded, err := archive.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(12), loaded.DeletedCount)
	assert.Equal(t, "m-1", loaded.MessageID)
	assert.True(t, started.Equal(loaded.StartedAt))
}

func TestReportArchive_SaveError(t *testing.T) {
	objects := newMemoryObjects()
	objects.putErr = errors.New("bucket gone")

	_, err := NewReportArchive(objects, "sweeps").Save(context.Background(), SweepReport{ID: "x", StartedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), config.ArchiveConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = New(context.Background(), config.ArchiveConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.ArchiveConfig{Backend: "minio", Minio: config.MinioConfig{Endpoint: "localhost:9000"}})
	assert.Error(t, err)

	_, err = New(context.Background(), config.ArchiveConfig{Backend: "gcs"})
	assert.Error(t, err)
}

var (
	_ ObjectStorage = (*MinioClient)(nil)
	_ ObjectStorage = (*GCSClient)(nil)
)

func TestNewMinioClient(t *testing.T) {
	valid := config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio123", Bucket: "sweeps"}

	client, err := NewMinioClient(valid)
	require.NoError(t, err)
	assert.Equal(t, "sweeps", client.Bucket())
	assert.NoError(t, client.Close())

	missingKeys := valid
	missingKeys.SecretKey = ""
	_, err = NewMinioClient(missingKeys)
	assert.EqualError(t, err, "minio access key and secret key are required")

	missingBucket := valid
	missingBucket.Bucket = " "
	_, err = NewMinioClient(missingBucket)
	assert.EqualError(t, err, "minio bucket is required")
}

func TestNewGCSClient_RequiresBucket(t *testing.T) {
	_, err := NewGCSClient(context.Background(), config.GCSConfig{ProjectID: "recallpro"})
	assert.EqualError(t, err, "gcs bucket is required")
}
