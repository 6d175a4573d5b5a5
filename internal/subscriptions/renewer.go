package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/internal/catalog"
	"github.com/angelmondragon/marketsettle/internal/commission"
	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
	"github.com/angelmondragon/marketsettle/pkg/money"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/outbox/payloads"
)

const (
	renewalOrderPrefix   = "REN"
	renewalSKU           = "RECURRING"
	renewalSourceChannel = "subscription"
	renewalLineKey       = "L001"
)

// Outcome is the result of processing one due subscription.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeCompleted Outcome = "completed"
)

// RenewerParams groups dependencies for the renewal worker.
type RenewerParams struct {
	Repo              Repository
	Orders            orders.Repository
	Catalog           catalog.Repository
	Commission        *commission.Resolver
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           *metrics.SettlementMetrics
	Logger            *logger.Logger
}

// Renewer bills one due cycle of a subscription.
type Renewer struct {
	repo       Repository
	orders     orders.Repository
	catalog    catalog.Repository
	commission *commission.Resolver
	outbox     outbox.Emitter
	tx         txRunner
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
}

func NewRenewer(params RenewerParams) (*Renewer, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("subscription repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Commission == nil:
		return nil, fmt.Errorf("commission resolver required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Renewer{
		repo:       params.Repo,
		orders:     params.Orders,
		catalog:    params.Catalog,
		commission: params.Commission,
		outbox:     params.Outbox,
		tx:         params.TransactionRunner,
		metrics:    params.Metrics,
		logg:       logg,
	}, nil
}

// ListDue exposes the due query to the scheduler.
func (r *Renewer) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	return r.repo.ListDue(ctx, now, limit)
}

// Process bills sub for the cycle due at now. Failures while building the
// renewal are recorded on the subscription and rescheduled; the returned
// error only reports that the subscription itself could not be saved.
func (r *Renewer) Process(ctx context.Context, sub *models.Subscription, now time.Time) (Outcome, error) {
	ctx = r.logg.WithSubscriptionID(ctx, sub.ID.String())

	if sub.CapReached() {
		complete(sub)
		if err := r.repo.SaveSchedule(ctx, sub); err != nil {
			return OutcomeFailed, fmt.Errorf("complete subscription %s: %w", sub.SubscriptionNumber, err)
		}
		r.emitCompleted(ctx, sub)
		return OutcomeCompleted, nil
	}

	before := *sub
	outcome, order, err := r.renew(ctx, sub, now)
	if err == nil {
		r.metrics.IncRenewal(string(outcome))
		if order != nil {
			r.emitRenewed(ctx, sub, order)
			if sub.Status == enums.SubscriptionStatusCompleted {
				r.emitCompleted(ctx, sub)
			}
		}
		return outcome, nil
	}

	*sub = before
	r.logg.Error(ctx, "subscription renewal failed", err)
	r.metrics.IncRenewal(string(OutcomeFailed))
	sub.RenewalHistory = append(sub.RenewalHistory, models.RenewalEntry{
		BilledAt: now,
		Amount:   money.LineTotal(sub.UnitPrice, sub.Quantity),
		Status:   enums.RenewalStatusFailed,
		Note:     err.Error(),
	})
	next := NextAfter(sub.NextBillingAt, now, sub.Interval, sub.IntervalCount)
	sub.NextBillingAt = &next
	if saveErr := r.repo.SaveSchedule(ctx, sub); saveErr != nil {
		return OutcomeFailed, fmt.Errorf("reschedule subscription %s: %w", sub.SubscriptionNumber, saveErr)
	}
	return OutcomeFailed, nil
}

func (r *Renewer) renew(ctx context.Context, sub *models.Subscription, now time.Time) (Outcome, *models.Order, error) {
	product, err := r.catalog.FindProduct(ctx, sub.ProductID)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	amount := money.LineTotal(sub.UnitPrice, sub.Quantity)
	next := NextAfter(sub.NextBillingAt, now, sub.Interval, sub.IntervalCount)

	if !product.IsActive || product.PriceType == enums.PriceTypeTBA {
		sub.RenewalHistory = append(sub.RenewalHistory, models.RenewalEntry{
			BilledAt: now,
			Amount:   amount,
			Status:   enums.RenewalStatusSkipped,
			Note:     "product unavailable for renewal",
		})
		sub.NextBillingAt = &next
		if err := r.repo.SaveSchedule(ctx, sub); err != nil {
			return OutcomeFailed, nil, err
		}
		r.logg.Warn(ctx, "subscription renewal skipped")
		return OutcomeSkipped, nil, nil
	}

	category, err := r.optionalCategory(ctx, product.CategoryID)
	if err != nil {
		return OutcomeFailed, nil, err
	}
	vendorID := sub.VendorID
	if vendorID == nil {
		vendorID = product.VendorID
	}
	vendor, err := r.optionalVendor(ctx, vendorID)
	if err != nil {
		return OutcomeFailed, nil, err
	}
	snapshot, err := r.commission.Snapshot(ctx, commission.Input{
		ItemTotal: amount,
		Product:   product,
		Category:  category,
		Vendor:    vendor,
	})
	if err != nil {
		return OutcomeFailed, nil, err
	}

	order := renewalOrder(sub, product, vendorID, snapshot, amount, now)
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.orders.WithTx(tx).Create(ctx, order); err != nil {
			return fmt.Errorf("create renewal order: %w", err)
		}
		sub.RenewalHistory = append(sub.RenewalHistory, models.RenewalEntry{
			BilledAt:    now,
			Amount:      amount,
			OrderID:     &order.ID,
			OrderNumber: order.OrderNumber,
			Status:      enums.RenewalStatusCreated,
		})
		sub.CompletedCycles++
		sub.LastBilledAt = &now
		if sub.CapReached() {
			complete(sub)
		} else {
			sub.NextBillingAt = &next
		}
		return r.repo.WithTx(tx).SaveSchedule(ctx, sub)
	})
	if err != nil {
		return OutcomeFailed, nil, err
	}
	r.logg.Info(r.logg.WithOrderID(ctx, order.ID.String()), "renewal order created")
	return OutcomeCreated, order, nil
}

func renewalOrder(sub *models.Subscription, product *models.Product, vendorID *uuid.UUID, snapshot models.CommissionSnapshot, amount decimal.Decimal, now time.Time) *models.Order {
	subID := sub.ID
	return &models.Order{
		OrderNumber:     orders.NewNumber(renewalOrderPrefix, now),
		UserID:          sub.UserID,
		CustomerName:    sub.CustomerName,
		CustomerEmail:   sub.GuestEmail,
		CustomerPhone:   sub.CustomerPhone,
		ShippingAddress: sub.ShippingAddress,
		Items: []models.OrderItem{{
			LineKey:     renewalLineKey,
			ProductID:   sub.ProductID,
			VendorID:    vendorID,
			VariationID: sub.VariationID,
			SKU:         renewalSKU,
			Name:        product.Name,
			Quantity:    sub.Quantity,
			UnitPrice:   sub.UnitPrice,
			LineTotal:   amount,
			Recurring:   true,
			Commission:  snapshot,
		}},
		Subtotal:      amount,
		ShippingFee:   decimal.Zero,
		Discount:      decimal.Zero,
		Total:         amount,
		Currency:      sub.Currency,
		PaymentMethod: sub.PaymentMethod,
		PaymentDetail: models.PaymentDetail{
			Method:        sub.PaymentMethod,
			TransactionID: fmt.Sprintf("AUTO-RENEWAL-%d", now.UnixMilli()),
		},
		OrderStatus:   enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		StatusTimeline: []models.TimelineEntry{{
			Status:    enums.OrderStatusPending,
			Note:      "recurring renewal of " + sub.SubscriptionNumber,
			Actor:     outbox.SystemActor.Actor,
			ActorRole: outbox.SystemActor.Role,
			At:        now,
		}},
		ShippingMeta: models.ShippingMeta{
			RecurringRenewal:   true,
			SubscriptionID:     &subID,
			SubscriptionNumber: sub.SubscriptionNumber,
		},
		SourceChannel: renewalSourceChannel,
	}
}

func complete(sub *models.Subscription) {
	sub.Status = enums.SubscriptionStatusCompleted
	sub.NextBillingAt = nil
}

func (r *Renewer) optionalCategory(ctx context.Context, id *uuid.UUID) (*models.Category, error) {
	if id == nil {
		return nil, nil
	}
	category, err := r.catalog.FindCategory(ctx, *id)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return category, err
}

func (r *Renewer) optionalVendor(ctx context.Context, id *uuid.UUID) (*models.Vendor, error) {
	if id == nil {
		return nil, nil
	}
	vendor, err := r.catalog.FindVendor(ctx, *id)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return vendor, err
}

func (r *Renewer) emitRenewed(ctx context.Context, sub *models.Subscription, order *models.Order) {
	r.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionRenewed,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         outbox.SystemActor,
		Data: payloads.SubscriptionRenewedEvent{
			SubscriptionID:     sub.ID,
			SubscriptionNumber: sub.SubscriptionNumber,
			OrderID:            order.ID,
			OrderNumber:        order.OrderNumber,
			Amount:             order.Total,
			Cycle:              sub.CompletedCycles,
			NextBillingAt:      sub.NextBillingAt,
		},
	})
}

func (r *Renewer) emitCompleted(ctx context.Context, sub *models.Subscription) {
	r.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionCompleted,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         outbox.SystemActor,
		Data: payloads.SubscriptionCompletedEvent{
			SubscriptionID:     sub.ID,
			SubscriptionNumber: sub.SubscriptionNumber,
			CompletedCycles:    sub.CompletedCycles,
		},
	})
}

func (r *Renewer) emit(ctx context.Context, event outbox.DomainEvent) {
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		r.logg.Error(r.logg.WithField(ctx, "event_type", event.EventType), "queue subscription notification", err)
	}
}
