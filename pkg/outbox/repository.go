package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// ListByAggregate returns the events queued for one aggregate in insert order.
func (r *Repository) ListByAggregate(ctx context.Context, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// FetchUnpublished locks the oldest undelivered events that still have
// attempts left. Concurrent dispatchers skip rows another one holds.
func (r *Repository) FetchUnpublished(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at":  at,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    nil,
		}).Error
}

func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    pkgerrors.Dump(cause).Summary(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminal parks an event so it is never fetched again.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    pkgerrors.Dump(cause).Summary(),
			"attempt_count": terminalAttempts,
		}).Error
}

// DeletePublishedBefore removes up to limit of the oldest rows created before
// cutoff that were delivered or parked after minAttempts.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	oldest := tx.Model(&models.OutboxEvent{}).
		Select("id").
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", minAttempts).
		Order("created_at ASC").
		Limit(limit)
	res := tx.WithContext(ctx).Where("id IN (?)", oldest).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
