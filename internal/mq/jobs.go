package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	AttrJobType    = "job_type"
	JobTypeCleanup = "token_cleanup"
)

// CleanupJob asks a sweeper to purge expired refresh tokens.
type CleanupJob struct {
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by,omitempty"`
}

func EncodeCleanupJob(job CleanupJob) ([]byte, map[string]string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("encode cleanup job: %w", err)
	}
	return data, map[string]string{AttrJobType: JobTypeCleanup}, nil
}

// DecodeCleanupJob rejects messages of other job types and malformed payloads
// with an error wrapping ErrDiscard.
func DecodeCleanupJob(msg Message) (CleanupJob, error) {
	if jobType := msg.Attributes[AttrJobType]; jobType != "" && jobType != JobTypeCleanup {
		return CleanupJob{}, fmt.Errorf("%w: unexpected job type %q", ErrDiscard, jobType)
	}
	var job CleanupJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		return CleanupJob{}, fmt.Errorf("%w: decode cleanup job: %v", ErrDiscard, err)
	}
	return job, nil
}

// PublishCleanup enqueues a cleanup job on channel.
func PublishCleanup(ctx context.Context, backend Backend, channel string, job CleanupJob) (string, error) {
	data, attrs, err := EncodeCleanupJob(job)
	if err != nil {
		return "", err
	}
	return backend.Publish(ctx, channel, data, attrs)
}
