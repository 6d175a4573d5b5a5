package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const currentVersion = 1

// DomainEvent is what services hand to Emit. Data is encoded as the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit writes event to the outbox within tx. The event id is a ULID stamped
// with OccurredAt; the row id carries the same 128 bits, so both sort in
// emission order and either one can serve as an idempotency key.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	if !event.EventType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown event type %q", event.EventType)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = currentVersion
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event data")
	}
	id := ulid.MustNew(ulid.Timestamp(event.OccurredAt), ulid.DefaultEntropy())
	envelope, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event envelope")
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            uuid.UUID(id),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       envelope,
	}); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       id.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
