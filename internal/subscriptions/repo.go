package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
)

// SourceLineConstraint keeps one subscription per recurring order line.
const SourceLineConstraint = "ux_subscriptions_source_line"

var scheduleColumns = []string{
	"status",
	"completed_cycles",
	"next_billing_at",
	"last_billed_at",
	"renewal_history",
	"updated_at",
}

// Repository persists subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindBySourceLine(ctx context.Context, orderID uuid.UUID, lineKey string) (*models.Subscription, error)
	ListBySourceOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	SaveSchedule(ctx context.Context, sub *models.Subscription) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *repository) FindBySourceLine(ctx context.Context, orderID uuid.UUID, lineKey string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("source_order_id = ? AND source_line_key = ?", orderID, lineKey).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *repository) ListBySourceOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("source_order_id = ?", orderID).
		Order("source_line_key ASC").
		Find(&rows).Error
	return rows, err
}

// ListDue returns active subscriptions due at now, oldest due first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var rows []models.Subscription
	q := r.db.WithContext(ctx).
		Where("status = ? AND next_billing_at IS NOT NULL AND next_billing_at <= ?", enums.SubscriptionStatusActive, now).
		Order("next_billing_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// SaveSchedule writes the billing progress columns only.
func (r *repository) SaveSchedule(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).
		Model(sub).
		Select(scheduleColumns).
		Updates(sub).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
}
