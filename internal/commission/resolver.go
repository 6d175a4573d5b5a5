// Package commission picks the commission rule for an order line and
// evaluates it. A vendor is never charged more than the line is worth.
package commission

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle/internal/settings"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	"github.com/angelmondragon/marketsettle/pkg/money"
)

// Selection is the rule that applies to a line and the tier it came from.
type Selection struct {
	Rule   *models.CommissionRule
	Source enums.CommissionSource
}

// PickSource walks product, category, vendor, then global and returns the
// first rule that does not inherit. A nil or inherit global yields source
// none and no rule.
func PickSource(product, category, vendor, global *models.CommissionRule) Selection {
	tiers := []struct {
		rule   *models.CommissionRule
		source enums.CommissionSource
	}{
		{product, enums.CommissionSourceProduct},
		{category, enums.CommissionSourceCategory},
		{vendor, enums.CommissionSourceVendor},
		{global, enums.CommissionSourceGlobal},
	}
	for _, tier := range tiers {
		if !tier.rule.Inherits() {
			return Selection{Rule: tier.rule, Source: tier.source}
		}
	}
	return Selection{Source: enums.CommissionSourceNone}
}

// Result is the evaluated commission and what remains for the vendor.
type Result struct {
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// Calculate evaluates rule against itemTotal. The commission is clamped to
// [0, itemTotal] and Net is always itemTotal minus Commission.
func Calculate(itemTotal decimal.Decimal, rule *models.CommissionRule) Result {
	total := money.NonNegative(money.Round(itemTotal))
	if rule.Inherits() {
		return Result{Commission: decimal.Zero, Net: total}
	}

	var raw decimal.Decimal
	switch rule.Type {
	case enums.CommissionTypePercentage:
		raw = money.Percent(total, rule.Value)
	case enums.CommissionTypeFixed:
		raw = rule.Value
		if rule.FixedAmount.IsPositive() {
			raw = rule.FixedAmount
		}
	case enums.CommissionTypeHybrid:
		raw = rule.FixedAmount.Add(money.Percent(total, rule.Value))
	}

	amount := money.Clamp(money.Round(raw), decimal.Zero, total)
	return Result{Commission: amount, Net: total.Sub(amount)}
}

// Input carries the entities whose rules compete for a line. Any of them may be nil.
type Input struct {
	ItemTotal decimal.Decimal
	Product   *models.Product
	Category  *models.Category
	Vendor    *models.Vendor
}

// Resolver combines the per-entity rules with the global rule from settings.
type Resolver struct {
	settings settings.Provider
}

func NewResolver(provider settings.Provider) (*Resolver, error) {
	if provider == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	return &Resolver{settings: provider}, nil
}

// Snapshot resolves and evaluates the commission for one line.
func (r *Resolver) Snapshot(ctx context.Context, in Input) (models.CommissionSnapshot, error) {
	global, err := r.settings.GlobalCommission(ctx)
	if err != nil {
		return models.CommissionSnapshot{}, fmt.Errorf("load global commission: %w", err)
	}

	var productRule, categoryRule, vendorRule *models.CommissionRule
	if in.Product != nil {
		productRule = &in.Product.Commission
	}
	if in.Category != nil {
		categoryRule = &in.Category.Commission
	}
	if in.Vendor != nil {
		vendorRule = &in.Vendor.Commission
	}

	return Evaluate(in.ItemTotal, PickSource(productRule, categoryRule, vendorRule, global)), nil
}

// Evaluate turns a selection into the snapshot frozen on the order line.
func Evaluate(itemTotal decimal.Decimal, sel Selection) models.CommissionSnapshot {
	res := Calculate(itemTotal, sel.Rule)
	snap := models.CommissionSnapshot{
		Amount:    res.Commission,
		Source:    sel.Source,
		Type:      enums.CommissionTypeInherit,
		VendorNet: res.Net,
	}
	if sel.Rule != nil {
		snap.Type = sel.Rule.Type
		snap.Value = sel.Rule.Value
		snap.FixedAmount = sel.Rule.FixedAmount
	}
	return snap
}
