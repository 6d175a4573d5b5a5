package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// Product is a vendor listing. Stock is mutated only through the inventory
// ledger's conditional updates.
type Product struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        *uuid.UUID            `gorm:"column:vendor_id;type:uuid;index"`
	CategoryID      *uuid.UUID            `gorm:"column:category_id;type:uuid;index"`
	Name            string                `gorm:"column:name;not null"`
	SKU             string                `gorm:"column:sku"`
	MarketplaceType enums.MarketplaceType `gorm:"column:marketplace_type;type:text;not null;default:'simple'"`
	PriceType       enums.PriceType       `gorm:"column:price_type;type:text;not null;default:'fixed'"`
	RegularPrice    decimal.Decimal       `gorm:"column:regular_price;type:numeric(12,2);not null;default:0"`
	SalePrice       decimal.NullDecimal   `gorm:"column:sale_price;type:numeric(12,2)"`
	Stock           int                   `gorm:"column:stock;not null;default:0"`
	AllowBackorder  bool                  `gorm:"column:allow_backorder;not null;default:false"`
	IsActive        bool                  `gorm:"column:is_active;not null"`
	ApprovalStatus  enums.ApprovalStatus  `gorm:"column:approval_status;type:text;not null;default:'pending'"`
	Commission      CommissionRule        `gorm:"embedded;embeddedPrefix:commission_"`
	Recurring       RecurringPlan         `gorm:"embedded;embeddedPrefix:recurring_"`
	Variations      []ProductVariation    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// RecurringPlan marks a product as sold on subscription.
type RecurringPlan struct {
	Enabled       bool                  `gorm:"column:enabled;not null;default:false"`
	Interval      enums.BillingInterval `gorm:"column:billing_interval;type:text"`
	IntervalCount int                   `gorm:"column:interval_count;not null;default:1"`
	TotalCycles   int                   `gorm:"column:total_cycles;not null;default:0"`
	TrialDays     int                   `gorm:"column:trial_days;not null;default:0"`
}

// ProductVariation is a purchasable variant of a variable product.
type ProductVariation struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Label     string          `gorm:"column:label;not null"`
	SKU       string          `gorm:"column:sku"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Stock     int             `gorm:"column:stock;not null;default:0"`
	IsActive  bool            `gorm:"column:is_active;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariation) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
