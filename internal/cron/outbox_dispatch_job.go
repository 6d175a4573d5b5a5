package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketsettle/internal/notifications"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const (
	defaultDispatchBatch = 50
	maxDispatchBatches   = 20
)

type outboxDispatcher interface {
	DispatchBatch(ctx context.Context, limit int) (notifications.DispatchSummary, error)
}

type OutboxDispatchJobParams struct {
	Logger     *logger.Logger
	Dispatcher outboxDispatcher
	BatchSize  int
}

// NewOutboxDispatchJob drains pending notification events, one locked batch
// at a time, until a batch comes back short.
func NewOutboxDispatchJob(params OutboxDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("outbox dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	return &outboxDispatchJob{logg: params.Logger, dispatcher: params.Dispatcher, batch: batch}, nil
}

type outboxDispatchJob struct {
	logg       *logger.Logger
	dispatcher outboxDispatcher
	batch      int
}

func (j *outboxDispatchJob) Name() string { return "outbox-dispatch" }

func (j *outboxDispatchJob) Run(ctx context.Context) error {
	var total notifications.DispatchSummary
	var runErr error
	for i := 0; i < maxDispatchBatches; i++ {
		if ctx.Err() != nil {
			break
		}
		summary, err := j.dispatcher.DispatchBatch(ctx, j.batch)
		total.Fetched += summary.Fetched
		total.Delivered += summary.Delivered
		total.Failed += summary.Failed
		total.Parked += summary.Parked
		if err != nil {
			runErr = err
			break
		}
		if summary.Fetched < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"fetched":   total.Fetched,
		"delivered": total.Delivered,
		"failed":    total.Failed,
		"parked":    total.Parked,
	}), "outbox dispatch finished")
	if runErr != nil {
		return fmt.Errorf("outbox dispatch: %w", runErr)
	}
	return nil
}
