package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketsettle/internal/subscriptions"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const defaultRenewalBatch = 50

type renewalProcessor interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	Process(ctx context.Context, sub *models.Subscription, now time.Time) (subscriptions.Outcome, error)
}

type RenewalJobParams struct {
	Logger    *logger.Logger
	Renewer   renewalProcessor
	BatchSize int
	Now       func() time.Time
}

// NewRenewalJob bills every due subscription, one batch per cycle, oldest
// due date first. Subscriptions are processed one at a time.
func NewRenewalJob(params RenewalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Renewer == nil {
		return nil, fmt.Errorf("renewer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRenewalBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &renewalJob{logg: params.Logger, renewer: params.Renewer, batch: batch, now: now}, nil
}

type renewalJob struct {
	logg    *logger.Logger
	renewer renewalProcessor
	batch   int
	now     func() time.Time
}

func (j *renewalJob) Name() string { return "subscription-renewal" }

func (j *renewalJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.renewer.ListDue(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list due subscriptions: %w", err)
	}

	// A subscription already being billed finishes even if ctx is canceled.
	work := context.WithoutCancel(ctx)
	counts := map[subscriptions.Outcome]int{}
	var errs error
	for i := range due {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		sub := &due[i]
		outcome, err := j.renewer.Process(j.logg.WithSubscriptionID(work, sub.ID.String()), sub, now)
		counts[outcome]++
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"created":   counts[subscriptions.OutcomeCreated],
		"completed": counts[subscriptions.OutcomeCompleted],
		"skipped":   counts[subscriptions.OutcomeSkipped],
		"failed":    counts[subscriptions.OutcomeFailed],
	}), "renewal sweep finished")
	return errs
}
