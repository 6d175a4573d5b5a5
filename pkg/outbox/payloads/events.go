package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// OrderCreatedEvent is queued once a checkout or renewal order is persisted.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	CustomerEmail *string         `json:"customer_email,omitempty"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Renewal       bool            `json:"renewal,omitempty"`
}

// OrderStatusChangedEvent drives the customer status email.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	From          enums.OrderStatus   `json:"from"`
	To            enums.OrderStatus   `json:"to"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Note          string              `json:"note,omitempty"`
	Source        string              `json:"source"`
}

// ConsignmentGeneratedEvent reports a consignment created for an order.
type ConsignmentGeneratedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	ConsignmentID string    `json:"consignment_id"`
	TrackingURL   string    `json:"tracking_url,omitempty"`
	GeneratedBy   string    `json:"generated_by"`
	Warning       string    `json:"warning,omitempty"`
}

// SubscriptionRenewedEvent drives the renewal email.
type SubscriptionRenewedEvent struct {
	SubscriptionID     uuid.UUID       `json:"subscription_id"`
	SubscriptionNumber string          `json:"subscription_number"`
	OrderID            uuid.UUID       `json:"order_id"`
	OrderNumber        string          `json:"order_number"`
	Amount             decimal.Decimal `json:"amount"`
	Cycle              int             `json:"cycle"`
	NextBillingAt      *time.Time      `json:"next_billing_at,omitempty"`
}

// SubscriptionCompletedEvent is queued when a subscription bills its last cycle.
type SubscriptionCompletedEvent struct {
	SubscriptionID     uuid.UUID `json:"subscription_id"`
	SubscriptionNumber string    `json:"subscription_number"`
	CompletedCycles    int       `json:"completed_cycles"`
}
