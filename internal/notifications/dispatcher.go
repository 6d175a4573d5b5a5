package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
)

const defaultMaxAttempts = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublished(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
}

// Notifier delivers one decoded event. Validation-coded errors are final.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type DispatcherParams struct {
	Logger            *logger.Logger
	TransactionRunner txRunner
	Store             eventStore
	Decoders          *outbox.DecoderRegistry
	Notifier          Notifier
	Metrics           *metrics.SettlementMetrics
	MaxAttempts       int
	Now               func() time.Time
}

// Dispatcher drains the outbox into a Notifier. Delivery failures never
// propagate to the operation that emitted the event.
type Dispatcher struct {
	logg        *logger.Logger
	tx          txRunner
	store       eventStore
	decoders    *outbox.DecoderRegistry
	notifier    Notifier
	metrics     *metrics.SettlementMetrics
	maxAttempts int
	now         func() time.Time
}

// DispatchSummary counts what one batch did. Parked events exhausted their
// attempts or can never be delivered.
type DispatchSummary struct {
	Fetched   int
	Delivered int
	Failed    int
	Parked    int
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("outbox store required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	decoders := params.Decoders
	if decoders == nil {
		decoders = outbox.DefaultDecoders()
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		logg:        params.Logger,
		tx:          params.TransactionRunner,
		store:       params.Store,
		decoders:    decoders,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		maxAttempts: maxAttempts,
		now:         now,
	}, nil
}

// DispatchBatch delivers up to limit pending events while holding their row
// locks, so parallel workers never deliver the same event twice.
func (d *Dispatcher) DispatchBatch(ctx context.Context, limit int) (DispatchSummary, error) {
	var summary DispatchSummary
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := d.store.FetchUnpublished(tx, limit, d.maxAttempts)
		if err != nil {
			return err
		}
		summary.Fetched = len(events)
		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if err := d.dispatch(ctx, tx, event, &summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("dispatch outbox: %w", err)
	}
	return summary, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, summary *DispatchSummary) error {
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"event_id":       event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount + 1,
		"aggregate_type": string(event.AggregateType),
	})

	env, data, err := d.decoders.DecodeRow(event.EventType, event.Payload)
	if err != nil {
		summary.Parked++
		d.metrics.IncNotification("parked")
		d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "outbox event cannot be decoded")
		return d.store.MarkTerminal(tx, event.ID, err, d.maxAttempts)
	}
	eventID := env.EventID
	if eventID == "" {
		eventID = event.ID.String()
	}
	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.CreatedAt
	}

	err = d.notifier.Notify(ctx, Notification{
		EventID:       eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OccurredAt:    occurredAt,
		Actor:         env.Actor,
		Data:          data,
	})
	if err == nil {
		summary.Delivered++
		d.metrics.IncNotification("delivered")
		return d.store.MarkPublished(tx, event.ID, d.now())
	}

	logCtx = d.logg.WithField(logCtx, "error", err.Error())
	if !pkgerrors.Retryable(err) || event.AttemptCount+1 >= d.maxAttempts {
		summary.Parked++
		d.metrics.IncNotification("parked")
		d.logg.Warn(logCtx, "outbox event will not be retried")
		return d.store.MarkTerminal(tx, event.ID, err, d.maxAttempts)
	}
	summary.Failed++
	d.metrics.IncNotification("failed")
	d.logg.Warn(logCtx, "outbox delivery failed")
	return d.store.MarkFailed(tx, event.ID, err)
}
