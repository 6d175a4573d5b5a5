package models

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// CommissionRule is embedded on products, categories, vendors and the
// marketplace settings row. Value is in percentage points.
type CommissionRule struct {
	Type        enums.CommissionType `gorm:"column:type;type:text;not null;default:'inherit'" json:"type"`
	Value       decimal.Decimal      `gorm:"column:value;type:numeric(12,4);not null;default:0" json:"value"`
	FixedAmount decimal.Decimal      `gorm:"column:fixed_amount;type:numeric(12,2);not null;default:0" json:"fixed_amount"`
}

// Inherits reports whether the rule defers to the next tier.
func (r *CommissionRule) Inherits() bool {
	return r == nil || r.Type == "" || r.Type == enums.CommissionTypeInherit
}

// CommissionSnapshot is frozen onto an order line when the order is created.
type CommissionSnapshot struct {
	Amount      decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null;default:0" json:"amount"`
	Source      enums.CommissionSource `gorm:"column:source;type:text;not null;default:'none'" json:"source"`
	Type        enums.CommissionType   `gorm:"column:type;type:text;not null;default:'inherit'" json:"type"`
	Value       decimal.Decimal        `gorm:"column:value;type:numeric(12,4);not null;default:0" json:"value"`
	FixedAmount decimal.Decimal        `gorm:"column:fixed_amount;type:numeric(12,2);not null;default:0" json:"fixed_amount"`
	VendorNet   decimal.Decimal        `gorm:"column:vendor_net;type:numeric(12,2);not null;default:0" json:"vendor_net"`
}
