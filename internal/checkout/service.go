// Package checkout turns a cart into a persisted, priced and stock-reserved
// order.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/internal/inventory"
	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/internal/risk"
	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/outbox/payloads"
	"github.com/angelmondragon/marketsettle/pkg/types"
	"github.com/angelmondragon/marketsettle/pkg/validate"
)

const (
	defaultSourceChannel = "web"
	cashOnDelivery       = "cod"
	customerRole         = "customer"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Apply(ctx context.Context, tx *gorm.DB, lines []inventory.Line, dir inventory.Direction) ([]models.InventoryAdjustment, error)
	Rollback(ctx context.Context, tx *gorm.DB, adjustments []models.InventoryAdjustment) error
}

// SubscriptionCreator opens subscriptions for the recurring lines of a new order.
type SubscriptionCreator interface {
	CreateForOrder(ctx context.Context, order *models.Order, plans map[string]models.RecurringPlan) ([]models.Subscription, error)
}

// PaymentRequest is what a payment gateway needs to start a session.
type PaymentRequest struct {
	OrderID       uuid.UUID
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// PaymentSession is the gateway's reply.
type PaymentSession struct {
	ProviderType     string
	GatewayPaymentID string
	GatewaySessionID string
	PaymentURL       string
	Meta             map[string]string
}

// PaymentInitiator is the external payment gateway.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
}

// Service places orders.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
}

// PlaceOrderInput is a customer checkout request.
type PlaceOrderInput struct {
	UserID          *uuid.UUID      `json:"user_id,omitempty"`
	Items           []LineItemInput `json:"items" validate:"min=1,dive"`
	ShippingAddress types.Address   `json:"address"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	CouponCode      string          `json:"coupon_code,omitempty" validate:"max=64"`
	PaymentMethod   string          `json:"payment_method" validate:"required,max=32"`
	SourceChannel   string          `json:"source_channel,omitempty" validate:"max=32"`
	LandingPageID   *uuid.UUID      `json:"landing_page_id,omitempty"`
	Actor           string          `json:"actor,omitempty"`
}

// PlaceOrderResult is a persisted order. PaymentURL is nil when no gateway
// session was needed or the gateway failed; PaymentError says which.
type PlaceOrderResult struct {
	Order         *models.Order
	PaymentURL    *string
	PaymentError  string
	Risk          *risk.Profile
	Subscriptions []models.Subscription
}

// ServiceParams groups dependencies for the checkout service. Risk,
// Subscriptions, Payments and Metrics are optional.
type ServiceParams struct {
	TransactionRunner txRunner
	Builder           *Builder
	Pricing           *Pricing
	Orders            orders.Repository
	Ledger            stockLedger
	Outbox            outbox.Emitter
	Risk              risk.Checker
	Subscriptions     SubscriptionCreator
	Payments          PaymentInitiator
	Coupons           CouponValidator
	Metrics           *metrics.SettlementMetrics
	Config            config.CheckoutConfig
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	tx            txRunner
	builder       *Builder
	pricing       *Pricing
	orders        orders.Repository
	ledger        stockLedger
	outbox        outbox.Emitter
	risk          risk.Checker
	subscriptions SubscriptionCreator
	payments      PaymentInitiator
	coupons       CouponValidator
	metrics       *metrics.SettlementMetrics
	cfg           config.CheckoutConfig
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Builder == nil:
		return nil, fmt.Errorf("order builder required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	pricing := params.Pricing
	if pricing == nil {
		pricing = NewPricing(params.Coupons)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:            params.TransactionRunner,
		builder:       params.Builder,
		pricing:       pricing,
		orders:        params.Orders,
		ledger:        params.Ledger,
		outbox:        params.Outbox,
		risk:          params.Risk,
		subscriptions: params.Subscriptions,
		payments:      params.Payments,
		coupons:       params.Coupons,
		metrics:       params.Metrics,
		cfg:           params.Config,
		logg:          logg,
		now:           now,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	address := input.ShippingAddress.Normalized()
	result := &PlaceOrderResult{}

	profile, err := s.checkRisk(ctx, input.UserID, address)
	if err != nil {
		return nil, err
	}
	result.Risk = profile

	built, err := s.builder.Build(ctx, input.Items)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Quote(ctx, QuoteInput{
		Subtotal:    built.Subtotal,
		ShippingFee: input.ShippingFee,
		CouponCode:  strings.TrimSpace(input.CouponCode),
		Items:       built.Items(),
		UserID:      input.UserID,
		Email:       address.Email,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := s.newOrder(input, address, built, quote, now)
	ctx = s.logg.WithOrderID(ctx, order.OrderNumber)

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).Create(ctx, order)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}

	adjustments, err := s.reserve(ctx, order, now)
	if err != nil {
		s.metrics.IncCompensation("reservation")
		if delErr := s.deleteOrder(ctx, order.ID); delErr != nil {
			s.logg.Error(ctx, "delete order after failed reservation", delErr)
		}
		return nil, err
	}

	if quote.CouponHandle != "" && s.coupons != nil {
		if err := s.coupons.Redeem(ctx, quote.CouponHandle, order.ID); err != nil {
			return nil, s.compensateCoupon(ctx, order, adjustments, err)
		}
	}

	if plans := built.RecurringPlans(); len(plans) > 0 && s.subscriptions != nil {
		subs, err := s.subscriptions.CreateForOrder(ctx, order, plans)
		if err != nil {
			s.logg.Error(ctx, "create subscriptions for order", err)
		}
		result.Subscriptions = subs
	}

	s.initiatePayment(ctx, order, result)
	s.emitCreated(ctx, order, input.Actor)

	result.Order = order
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"total":    order.Total.StringFixed(2),
	}), "order placed")
	return result, nil
}

func (s *service) checkRisk(ctx context.Context, userID *uuid.UUID, address types.Address) (*risk.Profile, error) {
	if s.risk == nil {
		return nil, nil
	}
	profile, err := s.risk.Profile(ctx, risk.Query{Email: address.Email, Phone: address.Phone, UserID: userID})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "risk profile unavailable")
		return nil, nil
	}
	if profile.Blocked(s.cfg.BlockLowSuccessRate) {
		return profile, pkgerrors.New(pkgerrors.CodeConflict, "orders from this customer are not accepted").
			WithDetails(map[string]any{"tier": profile.Tier, "success_rate": profile.SuccessRate})
	}
	return profile, nil
}

func (s *service) newOrder(input PlaceOrderInput, address types.Address, built *BuildResult, quote *Quote, now time.Time) *models.Order {
	currency := s.cfg.Currency
	if currency == "" {
		currency = "BDT"
	}
	channel := strings.TrimSpace(input.SourceChannel)
	if channel == "" {
		channel = defaultSourceChannel
	}
	actor := input.Actor
	if actor == "" {
		actor = address.Name
	}
	order := &models.Order{
		OrderNumber:     orders.NewNumber(s.cfg.OrderNumberPrefix, now),
		UserID:          input.UserID,
		CustomerName:    address.Name,
		CustomerPhone:   optional(address.Phone),
		CustomerEmail:   optional(address.Email),
		Items:           built.Items(),
		ShippingAddress: address,
		Subtotal:        quote.Subtotal,
		ShippingFee:     quote.ShippingFee,
		Discount:        quote.Discount,
		Total:           quote.Total,
		Currency:        currency,
		CouponCode:      quote.CouponCode,
		PaymentMethod:   strings.ToLower(strings.TrimSpace(input.PaymentMethod)),
		OrderStatus:     enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		StatusTimeline: []models.TimelineEntry{{
			Status:    enums.OrderStatusPending,
			Note:      "order placed",
			Actor:     actor,
			ActorRole: customerRole,
			At:        now,
		}},
		SourceChannel: channel,
		LandingPageID: input.LandingPageID,
	}
	order.PaymentDetail = models.PaymentDetail{Method: order.PaymentMethod}
	return order
}

// reserve deducts stock and records the deduction on the order in one
// transaction, so stock never leaves without the state that restores it.
func (s *service) reserve(ctx context.Context, order *models.Order, now time.Time) ([]models.InventoryAdjustment, error) {
	var adjustments []models.InventoryAdjustment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.ledger.Apply(ctx, tx, reservationLines(order.Items), inventory.Reserve)
		if err != nil {
			return err
		}
		inventory.MarkDeducted(order, applied, now)
		if err := s.orders.WithTx(tx).SaveState(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCompensation, err, "record inventory state")
		}
		adjustments = applied
		return nil
	})
	if err != nil {
		order.ShippingMeta.Inventory = models.InventoryState{}
		return nil, err
	}
	return adjustments, nil
}

// compensateCoupon undoes the reservation and the order after the coupon
// could not be redeemed.
func (s *service) compensateCoupon(ctx context.Context, order *models.Order, adjustments []models.InventoryAdjustment, cause error) error {
	s.metrics.IncCompensation("coupon")
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return multierr.Append(
			s.ledger.Rollback(ctx, tx, adjustments),
			s.orders.WithTx(tx).Delete(ctx, order.ID),
		)
	})
	if err != nil {
		s.logg.Error(ctx, "coupon compensation incomplete", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, multierr.Append(cause, err), "coupon redemption failed and rollback did not complete")
	}
	return pkgerrors.Wrap(pkgerrors.CodeCompensation, cause, "coupon redemption failed; order was rolled back")
}

func (s *service) deleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).Delete(ctx, id)
	})
}

func (s *service) initiatePayment(ctx context.Context, order *models.Order, result *PlaceOrderResult) {
	if s.payments == nil || order.PaymentMethod == cashOnDelivery {
		return
	}
	session, err := s.payments.Initiate(ctx, PaymentRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        order.Total,
		Currency:      order.Currency,
		Method:        order.PaymentMethod,
		CustomerName:  order.CustomerName,
		CustomerEmail: deref(order.CustomerEmail),
		CustomerPhone: deref(order.CustomerPhone),
	})
	if err != nil {
		result.PaymentError = err.Error()
		s.logg.Error(ctx, "payment initiation failed", err)
		return
	}
	if session == nil {
		return
	}

	order.PaymentDetail.ProviderType = session.ProviderType
	order.PaymentDetail.GatewayPaymentID = session.GatewayPaymentID
	order.PaymentDetail.GatewaySessionID = session.GatewaySessionID
	order.PaymentDetail.Meta = session.Meta
	if session.PaymentURL != "" {
		url := session.PaymentURL
		order.PaymentDetail.PaymentURL = &url
		result.PaymentURL = &url
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).SaveState(ctx, order)
	}); err != nil {
		s.logg.Error(ctx, "persist payment session", err)
	}
}

func (s *service) emitCreated(ctx context.Context, order *models.Order, actor string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Actor: actor, Role: customerRole},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				CustomerEmail: order.CustomerEmail,
				Total:         order.Total,
				PaymentMethod: order.PaymentMethod,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "queue order confirmation", err)
	}
}

func reservationLines(items []models.OrderItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
