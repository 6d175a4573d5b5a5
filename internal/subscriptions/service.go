// Package subscriptions creates recurring subscriptions from checkout orders
// and bills their later cycles.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const numberPrefix = "SUB"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the subscription lifecycle surface.
type Service interface {
	CreateForOrder(ctx context.Context, order *models.Order, plans map[string]models.RecurringPlan) ([]models.Subscription, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, tx: params.TransactionRunner, logg: logg, now: now}, nil
}

// CreateForOrder opens one subscription per recurring line of order. The
// checkout order itself is billed cycle one. Lines that already have a
// subscription are returned as they are.
func (s *service) CreateForOrder(ctx context.Context, order *models.Order, plans map[string]models.RecurringPlan) ([]models.Subscription, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.UserID == nil && order.CustomerEmail == nil {
		if len(plans) > 0 {
			s.logg.Warn(ctx, "recurring lines on a guest order without email; no subscription created")
		}
		return nil, nil
	}

	now := s.now()
	var created []models.Subscription
	for _, item := range order.Items {
		plan, ok := plans[item.LineKey]
		if !ok || !plan.Enabled || !plan.Interval.IsValid() {
			continue
		}
		sub := newSubscription(order, item, plan, now)

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).Create(ctx, sub)
		})
		if err != nil {
			if !db.IsUniqueViolation(err, SourceLineConstraint) {
				return created, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
			}
			existing, findErr := s.repo.FindBySourceLine(ctx, order.ID, item.LineKey)
			if findErr != nil {
				return created, findErr
			}
			sub = existing
		} else {
			s.logg.Info(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "subscription created")
		}
		created = append(created, *sub)
	}
	return created, nil
}

func newSubscription(order *models.Order, item models.OrderItem, plan models.RecurringPlan, now time.Time) *models.Subscription {
	count := plan.IntervalCount
	if count < 1 {
		count = 1
	}
	sub := &models.Subscription{
		SubscriptionNumber: orders.NewNumber(numberPrefix, now),
		UserID:             order.UserID,
		CustomerName:       order.CustomerName,
		CustomerPhone:      order.CustomerPhone,
		VendorID:           item.VendorID,
		ProductID:          item.ProductID,
		VariationID:        item.VariationID,
		SourceOrderID:      order.ID,
		SourceLineKey:      item.LineKey,
		Quantity:           item.Quantity,
		UnitPrice:          item.UnitPrice,
		Currency:           order.Currency,
		Interval:           plan.Interval,
		IntervalCount:      count,
		TotalCycles:        plan.TotalCycles,
		CompletedCycles:    1,
		TrialDays:          plan.TrialDays,
		StartsAt:           now,
		LastBilledAt:       &now,
		Status:             enums.SubscriptionStatusActive,
		PaymentMethod:      order.PaymentMethod,
		ShippingAddress:    order.ShippingAddress,
		RenewalHistory: []models.RenewalEntry{{
			BilledAt:    now,
			Amount:      item.LineTotal,
			OrderID:     &order.ID,
			OrderNumber: order.OrderNumber,
			Status:      enums.RenewalStatusCreated,
			Note:        "initial order",
		}},
	}
	if order.UserID == nil {
		sub.GuestEmail = order.CustomerEmail
	}
	if sub.CapReached() {
		sub.Status = enums.SubscriptionStatusCompleted
		return sub
	}
	next := FirstBillingAt(now, plan.TrialDays, plan.Interval, count)
	sub.NextBillingAt = &next
	return sub
}

func (s *service) Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.changeStatus(ctx, id, enums.SubscriptionStatusPaused, func(sub *models.Subscription) error {
		if sub.Status != enums.SubscriptionStatusActive {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot pause a %s subscription", sub.Status)
		}
		return nil
	})
}

// Resume reactivates a paused subscription. A due date that passed while
// paused moves to now so the next sweep bills it once.
func (s *service) Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	now := s.now()
	return s.changeStatus(ctx, id, enums.SubscriptionStatusActive, func(sub *models.Subscription) error {
		if sub.Status != enums.SubscriptionStatusPaused {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot resume a %s subscription", sub.Status)
		}
		if sub.NextBillingAt == nil || sub.NextBillingAt.Before(now) {
			sub.NextBillingAt = &now
		}
		return nil
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.changeStatus(ctx, id, enums.SubscriptionStatusCancelled, func(sub *models.Subscription) error {
		switch sub.Status {
		case enums.SubscriptionStatusActive, enums.SubscriptionStatusPaused:
			sub.NextBillingAt = nil
			return nil
		default:
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot cancel a %s subscription", sub.Status)
		}
	})
}

func (s *service) changeStatus(ctx context.Context, id uuid.UUID, to enums.SubscriptionStatus, check func(*models.Subscription) error) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := check(found); err != nil {
			return err
		}
		found.Status = to
		sub = found
		return repo.SaveSchedule(ctx, found)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"subscription_id": id.String(),
		"status":          to,
	}), "subscription status changed")
	return sub, nil
}
