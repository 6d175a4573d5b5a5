package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/outbox/payloads"
	"github.com/angelmondragon/marketsettle/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryRestorer returns the stock held by a cancelled or returned order.
type InventoryRestorer interface {
	RestoreOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, now time.Time) (bool, error)
}

// ConsignmentGenerator produces a consignment for an order. It never fails:
// when the courier API cannot be used a local consignment is returned.
type ConsignmentGenerator interface {
	Consign(ctx context.Context, order *models.Order) models.CourierState
}

// Service drives orders through their status lifecycle.
type Service interface {
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	ApplyCourierUpdate(ctx context.Context, input CourierUpdateInput) (*CourierUpdateResult, error)
}

// UpdateStatusInput is an admin status change.
type UpdateStatusInput struct {
	OrderID   uuid.UUID         `json:"order_id" validate:"required"`
	Status    enums.OrderStatus `json:"status" validate:"required"`
	Note      string            `json:"note,omitempty" validate:"max=500"`
	Actor     string            `json:"actor" validate:"required"`
	ActorRole string            `json:"actor_role,omitempty"`
}

// CourierUpdateInput carries courier data for an order. Status is the mapped
// order status, nil when the courier reported nothing mappable. Generated
// marks a freshly created consignment.
type CourierUpdateInput struct {
	OrderID       uuid.UUID
	Courier       models.CourierState
	CourierStatus string
	Status        *enums.OrderStatus
	Generated     bool
	Actor         string
}

// CourierUpdateResult reports whether the mapped status was applied. When it
// was not, SkipReason says why.
type CourierUpdateResult struct {
	Order      *models.Order
	Applied    bool
	SkipReason string
}

const courierActorRole = "courier"

type service struct {
	repo      Repository
	tx        txRunner
	inventory InventoryRestorer
	courier   ConsignmentGenerator
	outbox    outbox.Emitter
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the state machine. courier may be nil, in which case
// shipping an order without a consignment leaves the courier state empty.
func NewService(repo Repository, tx txRunner, inventory InventoryRestorer, courier ConsignmentGenerator, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory restorer required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inventory,
		courier:   courier,
		outbox:    emitter,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Status)
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	from := order.OrderStatus
	if !CanTransition(from, input.Status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, input.Status).
			WithDetails(map[string]any{"from": from, "to": input.Status, "allowed": AllowedNext(from)})
	}

	generated := false
	if input.Status == enums.OrderStatusShipped && from != enums.OrderStatusShipped &&
		!order.ShippingMeta.Courier.HasConsignment() && s.courier != nil {
		order.ShippingMeta.Courier = s.courier.Consign(ctx, order)
		generated = order.ShippingMeta.Courier.HasConsignment()
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.applyTransition(ctx, tx, order, input.Status, models.TimelineEntry{
			Note:      input.Note,
			Actor:     input.Actor,
			ActorRole: input.ActorRole,
			At:        now,
		}); err != nil {
			return err
		}
		return s.repo.WithTx(tx).SaveState(ctx, order)
	})
	if err != nil {
		return nil, wrapInternal(err, "update order status")
	}

	actor := &outbox.ActorRef{Actor: input.Actor, Role: input.ActorRole}
	s.emitStatusChanged(ctx, order, from, input.Note, "admin", actor)
	if generated {
		s.emitConsignment(ctx, order, actor)
	}
	return order, nil
}

func (s *service) ApplyCourierUpdate(ctx context.Context, input CourierUpdateInput) (*CourierUpdateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	from := order.OrderStatus
	result := &CourierUpdateResult{Order: order}

	switch {
	case input.Status == nil && input.CourierStatus == "":
	case input.Status == nil:
		result.SkipReason = fmt.Sprintf("courier status %q has no order status mapping", input.CourierStatus)
	case *input.Status == from:
		result.SkipReason = "order already in mapped status"
	case !CanTransition(from, *input.Status):
		result.SkipReason = fmt.Sprintf("transition from %s to %s is not allowed", from, *input.Status)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"courier_status": input.CourierStatus,
			"from":           from,
			"to":             *input.Status,
		}), "courier status skipped")
	default:
		result.Applied = true
	}

	now := s.now()
	order.ShippingMeta.Courier = input.Courier
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if result.Applied {
			if err := s.applyTransition(ctx, tx, order, *input.Status, models.TimelineEntry{
				Note:      fmt.Sprintf("courier reported %s", input.CourierStatus),
				Actor:     input.Actor,
				ActorRole: courierActorRole,
				At:        now,
			}); err != nil {
				return err
			}
		}
		return s.repo.WithTx(tx).SaveState(ctx, order)
	})
	if err != nil {
		return nil, wrapInternal(err, "apply courier update")
	}

	actor := &outbox.ActorRef{Actor: input.Actor, Role: courierActorRole}
	if result.Applied {
		s.emitStatusChanged(ctx, order, from, "", "courier", actor)
	}
	if input.Generated && order.ShippingMeta.Courier.HasConsignment() {
		s.emitConsignment(ctx, order, actor)
	}
	return result, nil
}

// applyTransition mutates order in place. Side effects only fire when the
// status actually changes; a same-status update appends a note.
func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, entry models.TimelineEntry) error {
	if order.OrderStatus != to {
		if to.SettlesPayment() && order.PaymentStatus == enums.PaymentStatusPending {
			order.PaymentStatus = enums.PaymentStatusCompleted
		}
		if to.ReleasesInventory() {
			order.PaymentStatus = enums.PaymentStatusFailed
			if _, err := s.inventory.RestoreOrder(ctx, tx, order, string(to), entry.At); err != nil {
				return err
			}
		}
		order.OrderStatus = to
	}
	entry.Status = to
	order.StatusTimeline = append(order.StatusTimeline, entry)
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, order *models.Order, from enums.OrderStatus, note, source string, actor *outbox.ActorRef) {
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			From:          from,
			To:            order.OrderStatus,
			PaymentStatus: order.PaymentStatus,
			Note:          note,
			Source:        source,
		},
	})
}

func (s *service) emitConsignment(ctx context.Context, order *models.Order, actor *outbox.ActorRef) {
	courier := order.ShippingMeta.Courier
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventConsignmentGenerated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.ConsignmentGeneratedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			ConsignmentID: courier.ConsignmentID,
			TrackingURL:   courier.TrackingURL,
			GeneratedBy:   courier.GeneratedBy,
			Warning:       courier.Warning,
		},
	})
}

// emit queues a notification event in its own transaction. Failures are
// logged and never surface to the caller.
func (s *service) emit(ctx context.Context, event outbox.DomainEvent) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_type", event.EventType), "queue order notification", err)
	}
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
