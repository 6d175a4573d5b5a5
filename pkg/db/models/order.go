package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/enums"
	"github.com/angelmondragon/marketsettle/pkg/types"
)

// ShippingMetaVersion is bumped whenever InventoryState or CourierState change shape.
const ShippingMetaVersion = 1

// Order is a customer order, created at checkout or by the renewal sweep.
// SourceChannel and LandingPageID are attribution fields and never change
// after insert.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          *uuid.UUID          `gorm:"column:user_id;type:uuid;index"`
	CustomerName    string              `gorm:"column:customer_name;not null"`
	CustomerEmail   *string             `gorm:"column:customer_email;index"`
	CustomerPhone   *string             `gorm:"column:customer_phone;index"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	ShippingFee     decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	Discount        decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	Currency        string              `gorm:"column:currency;not null;default:'BDT'"`
	CouponCode      *string             `gorm:"column:coupon_code"`
	PaymentMethod   string              `gorm:"column:payment_method;not null"`
	PaymentDetail   PaymentDetail       `gorm:"column:payment_detail;type:jsonb;serializer:json"`
	OrderStatus     enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending';index"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	StatusTimeline  []TimelineEntry     `gorm:"column:status_timeline;type:jsonb;serializer:json"`
	ShippingMeta    ShippingMeta        `gorm:"column:shipping_meta;type:jsonb;serializer:json"`
	SourceChannel   string              `gorm:"column:source_channel;not null;default:'web'"`
	LandingPageID   *uuid.UUID          `gorm:"column:landing_page_id;type:uuid"`
	// TrackedConsignmentID mirrors an API-booked consignment id from
	// ShippingMeta.Courier; nil for local or missing consignments.
	TrackedConsignmentID *string    `gorm:"column:tracked_consignment_id;index"`
	CourierCheckedAt     *time.Time `gorm:"column:courier_checked_at"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	if o.ShippingMeta.Version == 0 {
		o.ShippingMeta.Version = ShippingMetaVersion
	}
	o.SyncTracking()
	return nil
}

// SyncTracking refreshes TrackedConsignmentID from the courier state.
func (o *Order) SyncTracking() {
	c := o.ShippingMeta.Courier
	if !c.HasConsignment() || c.GeneratedBy != CourierGeneratedByAPI {
		o.TrackedConsignmentID = nil
		return
	}
	id := c.ConsignmentID
	o.TrackedConsignmentID = &id
}

// OrderItem is a priced line. UnitPrice and Commission are snapshots taken
// when the order was built and are never recomputed.
type OrderItem struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	LineKey        string             `gorm:"column:line_key;not null"`
	ProductID      uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index"`
	VendorID       *uuid.UUID         `gorm:"column:vendor_id;type:uuid;index"`
	VariationID    *uuid.UUID         `gorm:"column:variation_id;type:uuid"`
	VariationLabel *string            `gorm:"column:variation_label"`
	SKU            string             `gorm:"column:sku"`
	Name           string             `gorm:"column:name;not null"`
	Quantity       int                `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal    `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal      decimal.Decimal    `gorm:"column:line_total;type:numeric(12,2);not null"`
	Recurring      bool               `gorm:"column:recurring;not null;default:false"`
	Commission     CommissionSnapshot `gorm:"embedded;embeddedPrefix:commission_"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// PaymentDetail normalises what a payment gateway reported for the order.
type PaymentDetail struct {
	Method           string            `json:"method"`
	ProviderType     string            `json:"provider_type,omitempty"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	GatewaySessionID string            `json:"gateway_session_id,omitempty"`
	PaymentURL       *string           `json:"payment_url,omitempty"`
	Meta             map[string]string `json:"meta,omitempty"`
}

// TimelineEntry is one append-only record of a status update.
type TimelineEntry struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	ActorRole string            `json:"actor_role,omitempty"`
	At        time.Time         `json:"at"`
}

// ShippingMeta holds the structured fulfilment sub-records of an order.
type ShippingMeta struct {
	Version            int            `json:"version"`
	Inventory          InventoryState `json:"inventory"`
	Courier            CourierState   `json:"courier"`
	RecurringRenewal   bool           `json:"recurring_renewal,omitempty"`
	SubscriptionID     *uuid.UUID     `json:"subscription_id,omitempty"`
	SubscriptionNumber string         `json:"subscription_number,omitempty"`
}

// InventoryState records what the ledger did for an order so a restore
// happens at most once and only reverses applied adjustments.
type InventoryState struct {
	Deducted       bool                  `json:"deducted"`
	DeductedAt     *time.Time            `json:"deducted_at,omitempty"`
	Restored       bool                  `json:"restored"`
	RestoredAt     *time.Time            `json:"restored_at,omitempty"`
	RestoredReason string                `json:"restored_reason,omitempty"`
	Adjustments    []InventoryAdjustment `json:"adjustments,omitempty"`
}

// InventoryAdjustment is one stock movement. Applied is false for backorder
// lines, which never touch the counter.
type InventoryAdjustment struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariationID *uuid.UUID `json:"variation_id,omitempty"`
	Quantity    int        `json:"quantity"`
	Applied     bool       `json:"applied"`
}

// CourierState is the consignment record for an order.
type CourierState struct {
	Provider       string         `json:"provider,omitempty"`
	ConsignmentID  string         `json:"consignment_id,omitempty"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	TrackingURL    string         `json:"tracking_url,omitempty"`
	LabelURL       string         `json:"label_url,omitempty"`
	Status         string         `json:"status,omitempty"`
	SyncedFromAPI  bool           `json:"synced_from_api"`
	GeneratedBy    string         `json:"generated_by,omitempty"`
	Warning        string         `json:"warning,omitempty"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
	LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty"`
	Events         []CourierEvent `json:"events,omitempty"`
}

// HasConsignment reports whether a consignment id has been recorded.
func (c CourierState) HasConsignment() bool {
	return c.ConsignmentID != ""
}

// CourierEvent is a raw tracking event as reported by the provider.
type CourierEvent struct {
	Status   string         `json:"status,omitempty"`
	Message  string         `json:"message,omitempty"`
	Location string         `json:"location,omitempty"`
	At       string         `json:"at,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

const (
	CourierGeneratedByAPI   = "api"
	CourierGeneratedByLocal = "local"
)
