// Package inventory reserves and restores stock counters. Reservation is a
// single conditional UPDATE per line so concurrent checkouts cannot oversell.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
)

// Direction selects reserve (-1) or restore (+1).
type Direction int

const (
	Reserve Direction = -1
	Restore Direction = 1
)

// Line is one stock movement request.
type Line struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Quantity    int
}

// Ledger applies stock movements inside the caller's transaction.
type Ledger struct {
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
}

func NewLedger(logg *logger.Logger, m *metrics.SettlementMetrics) *Ledger {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{logg: logg, metrics: m}
}

// Apply moves stock for every line. On reserve, a failing line reverses the
// adjustments already applied in this batch, newest first, and the error of
// the failing line is returned. On restore, every line is added back
// unconditionally.
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, lines []Line, dir Direction) ([]models.InventoryAdjustment, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	switch dir {
	case Reserve:
		return l.reserve(ctx, tx, lines)
	case Restore:
		adjustments := make([]models.InventoryAdjustment, 0, len(lines))
		for _, line := range lines {
			adj := models.InventoryAdjustment{ProductID: line.ProductID, VariationID: line.VariationID, Quantity: line.Quantity, Applied: true}
			if err := increment(ctx, tx, adj); err != nil {
				return adjustments, err
			}
			adjustments = append(adjustments, adj)
		}
		return adjustments, nil
	default:
		return nil, fmt.Errorf("unknown inventory direction %d", dir)
	}
}

func (l *Ledger) reserve(ctx context.Context, tx *gorm.DB, lines []Line) ([]models.InventoryAdjustment, error) {
	applied := make([]models.InventoryAdjustment, 0, len(lines))
	for _, line := range lines {
		adj, err := l.reserveLine(ctx, tx, line)
		if err != nil {
			if rbErr := l.Rollback(ctx, tx, applied); rbErr != nil {
				l.logg.Error(ctx, "inventory rollback incomplete", rbErr)
				return nil, multierr.Append(err, rbErr)
			}
			return nil, err
		}
		applied = append(applied, adj)
	}
	return applied, nil
}

func (l *Ledger) reserveLine(ctx context.Context, tx *gorm.DB, line Line) (models.InventoryAdjustment, error) {
	adj := models.InventoryAdjustment{ProductID: line.ProductID, VariationID: line.VariationID, Quantity: line.Quantity}
	if line.Quantity < 1 {
		return adj, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var product models.Product
	err := tx.WithContext(ctx).Select("id", "name", "allow_backorder").Where("id = ?", line.ProductID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return adj, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID)
		}
		return adj, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product for reservation")
	}
	if product.AllowBackorder {
		return adj, nil
	}

	table, id := stockTarget(adj)
	res := tx.WithContext(ctx).Table(table).
		Where("id = ? AND stock >= ?", id, line.Quantity).
		Update("stock", gorm.Expr("stock - ?", line.Quantity))
	if res.Error != nil {
		return adj, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		l.metrics.IncStockConflict()
		return adj, pkgerrors.Newf(pkgerrors.CodeConflict, "insufficient stock for %s", product.Name).
			WithDetails(map[string]any{"product_id": line.ProductID, "requested": line.Quantity})
	}
	adj.Applied = true
	return adj, nil
}

// Rollback reverses applied adjustments in reverse order. Unapplied entries
// are skipped.
func (l *Ledger) Rollback(ctx context.Context, tx *gorm.DB, adjustments []models.InventoryAdjustment) error {
	var errs error
	for i := len(adjustments) - 1; i >= 0; i-- {
		adj := adjustments[i]
		if !adj.Applied {
			continue
		}
		errs = multierr.Append(errs, increment(ctx, tx, adj))
	}
	return errs
}

// RestoreOrder returns the stock an order reserved. It runs at most once per
// order: the order's inventory state is updated in place and the caller
// persists it. The boolean reports whether anything was restored.
func (l *Ledger) RestoreOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, now time.Time) (bool, error) {
	state := &order.ShippingMeta.Inventory
	if !state.Deducted || state.Restored {
		return false, nil
	}
	if err := l.Rollback(ctx, tx, state.Adjustments); err != nil {
		return false, fmt.Errorf("restore inventory for order %s: %w", order.OrderNumber, err)
	}
	state.Restored = true
	state.RestoredAt = &now
	state.RestoredReason = reason
	l.logg.Info(l.logg.WithOrderID(ctx, order.ID.String()), "inventory restored")
	return true, nil
}

// MarkDeducted records a successful reservation on the order.
func MarkDeducted(order *models.Order, adjustments []models.InventoryAdjustment, now time.Time) {
	order.ShippingMeta.Inventory = models.InventoryState{
		Deducted:    true,
		DeductedAt:  &now,
		Adjustments: adjustments,
	}
}

func increment(ctx context.Context, tx *gorm.DB, adj models.InventoryAdjustment) error {
	table, id := stockTarget(adj)
	res := tx.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", adj.Quantity))
	if res.Error != nil {
		return fmt.Errorf("increment stock on %s %s: %w", table, id, res.Error)
	}
	return nil
}

func stockTarget(adj models.InventoryAdjustment) (string, uuid.UUID) {
	if adj.VariationID != nil && *adj.VariationID != uuid.Nil {
		return "product_variations", *adj.VariationID
	}
	return "products", adj.ProductID
}
