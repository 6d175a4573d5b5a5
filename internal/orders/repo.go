package orders

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

// mutableColumns are the only columns touched after an order is created.
var mutableColumns = []string{
	"order_status",
	"payment_status",
	"payment_detail",
	"status_timeline",
	"shipping_meta",
	"tracked_consignment_id",
	"updated_at",
}

// Repository persists orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SaveState(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListTrackable(ctx context.Context, statuses []enums.OrderStatus, limit int) ([]models.Order, error)
	MarkCourierChecked(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order and its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_key ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return &order, nil
}

// SaveState writes the status, payment, timeline and shipping metadata.
// Attribution and money columns are never rewritten.
func (r *repository) SaveState(ctx context.Context, order *models.Order) error {
	order.SyncTracking()
	return r.db.WithContext(ctx).
		Model(order).
		Select(mutableColumns).
		Updates(order).Error
}

// Delete removes an order and its items. Only used to compensate a failed checkout.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Order{}).Error
}

// ListTrackable returns orders in the given statuses that carry an
// API-booked consignment, never-checked first, then least recently checked.
func (r *repository) ListTrackable(ctx context.Context, statuses []enums.OrderStatus, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("order_status IN ?", statuses).
		Where("tracked_consignment_id IS NOT NULL").
		Order("courier_checked_at ASC NULLS FIRST").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// MarkCourierChecked stamps a tracking attempt without touching updated_at.
func (r *repository) MarkCourierChecked(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumn("courier_checked_at", at).Error
}
