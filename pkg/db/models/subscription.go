package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/enums"
	"github.com/angelmondragon/marketsettle/pkg/types"
)

// Subscription rebills one order line on a fixed interval. The pair
// (SourceOrderID, SourceLineKey) is unique.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionNumber string                   `gorm:"column:subscription_number;not null;uniqueIndex"`
	UserID             *uuid.UUID               `gorm:"column:user_id;type:uuid;index"`
	GuestEmail         *string                  `gorm:"column:guest_email"`
	CustomerName       string                   `gorm:"column:customer_name;not null"`
	CustomerPhone      *string                  `gorm:"column:customer_phone"`
	VendorID           *uuid.UUID               `gorm:"column:vendor_id;type:uuid"`
	ProductID          uuid.UUID                `gorm:"column:product_id;type:uuid;not null"`
	VariationID        *uuid.UUID               `gorm:"column:variation_id;type:uuid"`
	SourceOrderID      uuid.UUID                `gorm:"column:source_order_id;type:uuid;not null;uniqueIndex:ux_subscriptions_source_line"`
	SourceLineKey      string                   `gorm:"column:source_line_key;not null;uniqueIndex:ux_subscriptions_source_line"`
	Quantity           int                      `gorm:"column:quantity;not null"`
	UnitPrice          decimal.Decimal          `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Currency           string                   `gorm:"column:currency;not null;default:'BDT'"`
	Interval           enums.BillingInterval    `gorm:"column:billing_interval;type:text;not null"`
	IntervalCount      int                      `gorm:"column:interval_count;not null;default:1"`
	TotalCycles        int                      `gorm:"column:total_cycles;not null;default:0"`
	CompletedCycles    int                      `gorm:"column:completed_cycles;not null;default:0"`
	TrialDays          int                      `gorm:"column:trial_days;not null;default:0"`
	StartsAt           time.Time                `gorm:"column:starts_at;not null"`
	NextBillingAt      *time.Time               `gorm:"column:next_billing_at;index"`
	LastBilledAt       *time.Time               `gorm:"column:last_billed_at"`
	Status             enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active';index"`
	PaymentMethod      string                   `gorm:"column:payment_method;not null"`
	ShippingAddress    types.Address            `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	RenewalHistory     []RenewalEntry           `gorm:"column:renewal_history;type:jsonb;serializer:json"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// CapReached reports whether a bounded subscription has billed every cycle.
func (s *Subscription) CapReached() bool {
	return s.TotalCycles > 0 && s.CompletedCycles >= s.TotalCycles
}

// RenewalEntry is one attempt recorded by the renewal sweep.
type RenewalEntry struct {
	BilledAt    time.Time           `json:"billed_at"`
	Amount      decimal.Decimal     `json:"amount"`
	OrderID     *uuid.UUID          `json:"order_id,omitempty"`
	OrderNumber string              `json:"order_number,omitempty"`
	Status      enums.RenewalStatus `json:"status"`
	Note        string              `json:"note,omitempty"`
}
