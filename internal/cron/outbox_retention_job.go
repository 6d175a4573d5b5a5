package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const (
	outboxRetentionDays  = 30
	outboxMinAttempts    = 10
	outboxPurgeChunk     = 500
	outboxPurgeMaxChunks = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPurger
	RetentionDays int
	// MinAttempts marks an undelivered row as parked; match Notify.MaxAttempts.
	MinAttempts int
	ChunkSize   int
	Now         func() time.Time
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	purger      outboxPurger
	window      time.Duration
	minAttempts int
	chunk       int
	now         func() time.Time
}

// NewOutboxRetentionJob purges delivered and parked outbox rows older than
// the retention window, one short transaction per chunk.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		purger:      params.Repository,
		window:      time.Duration(positiveOr(params.RetentionDays, outboxRetentionDays)) * 24 * time.Hour,
		minAttempts: positiveOr(params.MinAttempts, outboxMinAttempts),
		chunk:       positiveOr(params.ChunkSize, outboxPurgeChunk),
		now:         params.Now,
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	var total int64
	for chunks := 0; chunks < outboxPurgeMaxChunks && ctx.Err() == nil; chunks++ {
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.purger.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts, j.chunk)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		if deleted < int64(j.chunk) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention complete")
	return nil
}
