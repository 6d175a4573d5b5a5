package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketsettle/internal/courier"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
)

const defaultCourierBatch = 100

type courierSyncer interface {
	SyncActive(ctx context.Context, actor string, limit int) (courier.SyncSummary, error)
}

type CourierSyncJobParams struct {
	Logger    *logger.Logger
	Syncer    courierSyncer
	BatchSize int
}

// NewCourierSyncJob pulls tracking for in-flight orders with API consignments.
func NewCourierSyncJob(params CourierSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("courier syncer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCourierBatch
	}
	return &courierSyncJob{logg: params.Logger, syncer: params.Syncer, batch: batch}, nil
}

type courierSyncJob struct {
	logg   *logger.Logger
	syncer courierSyncer
	batch  int
}

func (j *courierSyncJob) Name() string { return "courier-sync" }

func (j *courierSyncJob) Run(ctx context.Context) error {
	summary, err := j.syncer.SyncActive(ctx, outbox.SystemActor.Actor, j.batch)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": summary.Checked,
		"applied": summary.Applied,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}), "courier sync finished")
	if err != nil {
		return fmt.Errorf("courier sync: %w", err)
	}
	return nil
}
