// Package sweeper runs expired refresh token cleanup, either on a local
// interval or driven by cleanup jobs from a message queue.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recallpro/auth/internal/mq"
	"github.com/recallpro/auth/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	TriggerManual   = "manual"
	TriggerInterval = "interval"
	TriggerQueue    = "queue"
)

// Cleaner deletes expired refresh tokens. *auth.Engine satisfies it.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Archiver persists a report of every sweep. *storage.ReportArchive satisfies it.
type Archiver interface {
	Save(ctx context.Context, report storage.SweepReport) (string, error)
}

type Option func(*Sweeper)

func WithArchiver(a Archiver) Option {
	return func(s *Sweeper) {
		s.archive = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

type Sweeper struct {
	backend  mq.Backend
	cleaner  Cleaner
	channel  string
	interval time.Duration
	archive  Archiver
	log      *slog.Logger
	now      func() time.Time
}

// New builds a sweeper. A nil backend makes Run sweep on the interval
// directly instead of publishing and consuming jobs.
func New(backend mq.Backend, cleaner Cleaner, channel string, interval time.Duration, log *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		backend:  backend,
		cleaner:  cleaner,
		channel:  channel,
		interval: interval,
		log:      log.With("component", "sweeper"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled. With a backend it consumes cleanup jobs
// and, when an interval is set, publishes one job per tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.backend == nil {
		if s.interval <= 0 {
			return errors.New("sweeper needs a queue backend or a positive interval")
		}
		s.log.InfoContext(ctx, "sweeping on interval", "interval", s.interval)
		return ignoreCanceled(s.every(ctx, func(ctx context.Context) {
			_, _ = s.sweep(ctx, TriggerInterval, "")
		}))
	}

	s.log.InfoContext(ctx, "consuming cleanup jobs", "channel", s.channel, "interval", s.interval)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.backend.Subscribe(gctx, s.channel, s.handle)
	})
	if s.interval > 0 {
		g.Go(func() error {
			return s.every(gctx, func(ctx context.Context) {
				if _, err := s.Enqueue(ctx, TriggerInterval); err != nil {
					s.log.ErrorContext(ctx, "failed to enqueue cleanup job", "error", err)
				}
			})
		})
	}
	return ignoreCanceled(g.Wait())
}

// Sweep runs one cleanup in-process and returns how many tokens were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	return s.sweep(ctx, TriggerManual, "")
}

func (s *Sweeper) sweep(ctx context.Context, trigger, messageID string) (int64, error) {
	report := storage.SweepReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		MessageID: messageID,
		StartedAt: s.now().UTC(),
	}
	deleted, err := s.cleaner.Cleanup(ctx)
	report.FinishedAt = s.now().UTC()
	report.DeletedCount = deleted

	if err != nil {
		report.Error = err.Error()
		s.log.ErrorContext(ctx, "cleanup failed", "trigger", trigger, "error", err)
	} else {
		s.log.InfoContext(ctx, "cleanup finished",
			"trigger", trigger,
			"deleted", deleted,
			"duration", report.FinishedAt.Sub(report.StartedAt),
		)
	}
	s.saveReport(ctx, report)

	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// saveReport failures are logged only; a sweep is not retried for them.
func (s *Sweeper) saveReport(ctx context.Context, report storage.SweepReport) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Save(ctx, report)
	if err != nil {
		s.log.WarnContext(ctx, "failed to archive sweep report", "report_id", report.ID, "error", err)
		return
	}
	s.log.DebugContext(ctx, "sweep report archived", "key", key)
}

// Enqueue publishes a cleanup job and returns the broker's message id.
func (s *Sweeper) Enqueue(ctx context.Context, requestedBy string) (string, error) {
	if s.backend == nil {
		return "", errors.New("no queue backend configured")
	}
	id, err := mq.PublishCleanup(ctx, s.backend, s.channel, mq.CleanupJob{
		RequestedAt: s.now().UTC(),
		RequestedBy: requestedBy,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue cleanup job: %w", err)
	}
	s.log.DebugContext(ctx, "cleanup job enqueued", "message_id", id, "requested_by", requestedBy)
	return id, nil
}

func (s *Sweeper) handle(ctx context.Context, msg mq.Message) error {
	job, err := mq.DecodeCleanupJob(msg)
	if err != nil {
		s.log.WarnContext(ctx, "dropping cleanup job", "message_id", msg.ID, "error", err)
		return err
	}
	s.log.DebugContext(ctx, "cleanup job received",
		"message_id", msg.ID,
		"requested_by", job.RequestedBy,
		"requested_at", job.RequestedAt,
	)
	_, err = s.sweep(ctx, TriggerQueue, msg.ID)
	return err
}

func (s *Sweeper) every(ctx context.Context, fn func(context.Context)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
