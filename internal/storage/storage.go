package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/recallpro/auth/config"
)

const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
	BackendNone  = "none"
)

// ObjectStorage is the subset of bucket operations the report archive needs.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
	Close() error
}

// New connects to the object store selected by cfg.Backend and makes sure
// its bucket exists. It returns a nil ObjectStorage for BackendNone.
func New(ctx context.Context, cfg config.ArchiveConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return backend, nil
}

// SweepReport records the outcome of one expired token sweep.
type SweepReport struct {
	ID           string    `json:"id"`
	Trigger      string    `json:"trigger"`
	MessageID    string    `json:"message_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DeletedCount int64     `json:"deleted_count"`
	Error        string    `json:"error,omitempty"`
}

// ReportArchive writes sweep reports as JSON objects keyed by day.
type ReportArchive struct {
	store  ObjectStorage
	prefix string
}

func NewReportArchive(store ObjectStorage, prefix string) *ReportArchive {
	return &ReportArchive{store: store, prefix: strings.Trim(prefix, "/")}
}

// Save uploads the report and returns its object key.
func (a *ReportArchive) Save(ctx context.Context, report SweepReport) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode sweep report: %w", err)
	}
	key := a.Key(report)
	if err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", fmt.Errorf("upload sweep report %s: %w", key, err)
	}
	return key, nil
}

// Load reads back a report saved under key.
func (a *ReportArchive) Load(ctx context.Context, key string) (SweepReport, error) {
	r, err := a.store.Get(ctx, key)
	if err != nil {
		return SweepReport{}, fmt.Errorf("download sweep report %s: %w", key, err)
	}
	defer r.Close()

	var report SweepReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return SweepReport{}, fmt.Errorf("decode sweep report %s: %w", key, err)
	}
	return report, nil
}

// Key is <prefix>/YYYY/MM/DD/<started_at>-<id>.json in UTC.
func (a *ReportArchive) Key(report SweepReport) string {
	started := report.StartedAt.UTC()
	name := fmt.Sprintf("%s-%s.json", started.Format("20060102T150405Z"), report.ID)
	return path.Join(a.prefix, started.Format("2006/01/02"), name)
}
