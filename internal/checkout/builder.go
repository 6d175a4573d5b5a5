package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle/internal/catalog"
	"github.com/angelmondragon/marketsettle/internal/commission"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/money"
)

// LineItemInput is one raw cart line. Price is the client-echoed unit price
// and is only used when the catalog has no usable price.
type LineItemInput struct {
	ProductID   uuid.UUID        `json:"product_id" validate:"required"`
	VariationID *uuid.UUID       `json:"variation_id,omitempty"`
	Quantity    int              `json:"quantity"`
	Price       *decimal.Decimal `json:"price,omitempty"`
}

// BuiltLine pairs a priced order item with the catalog records it came from.
type BuiltLine struct {
	Item    models.OrderItem
	Product *models.Product
	Vendor  *models.Vendor
}

// BuildResult is the validated, priced and commissioned cart.
type BuildResult struct {
	Lines    []BuiltLine
	Subtotal decimal.Decimal
}

// Items returns the order items in input order.
func (r *BuildResult) Items() []models.OrderItem {
	items := make([]models.OrderItem, 0, len(r.Lines))
	for _, line := range r.Lines {
		items = append(items, line.Item)
	}
	return items
}

// RecurringPlans returns the subscription plan of every recurring line keyed by line key.
func (r *BuildResult) RecurringPlans() map[string]models.RecurringPlan {
	plans := map[string]models.RecurringPlan{}
	for _, line := range r.Lines {
		if line.Product != nil && line.Product.Recurring.Enabled {
			plans[line.Item.LineKey] = line.Product.Recurring
		}
	}
	return plans
}

// Builder turns raw cart lines into order items. The first violation aborts
// the whole build.
type Builder struct {
	catalog    catalog.Repository
	commission *commission.Resolver
}

func NewBuilder(repo catalog.Repository, resolver *commission.Resolver) (*Builder, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("commission resolver required")
	}
	return &Builder{catalog: repo, commission: resolver}, nil
}

func (b *Builder) Build(ctx context.Context, inputs []LineItemInput) (*BuildResult, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	cache := catalog.NewBatchCache(b.catalog)
	result := &BuildResult{Lines: make([]BuiltLine, 0, len(inputs))}
	sum := decimal.Zero

	for i, in := range inputs {
		line, err := b.buildLine(ctx, cache, i, in)
		if err != nil {
			return nil, err
		}
		sum = sum.Add(line.Item.UnitPrice.Mul(decimal.NewFromInt(int64(line.Item.Quantity))))
		result.Lines = append(result.Lines, *line)
	}

	result.Subtotal = money.Round(sum)
	return result, nil
}

func (b *Builder) buildLine(ctx context.Context, cache *catalog.BatchCache, index int, in LineItemInput) (*BuiltLine, error) {
	if in.Quantity < 1 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be at least 1", index+1)
	}

	product, err := b.catalog.FindProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive || product.ApprovalStatus != enums.ApprovalStatusApproved {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not available for purchase", product.Name)
	}
	if product.MarketplaceType == enums.MarketplaceTypeGrouped {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is a grouped product and cannot be purchased directly", product.Name)
	}
	if product.PriceType == enums.PriceTypeTBA {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s has no announced price yet", product.Name)
	}

	var variation *models.ProductVariation
	available := product.Stock
	if product.MarketplaceType == enums.MarketplaceTypeVariable {
		if in.VariationID == nil || *in.VariationID == uuid.Nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s requires a variation", product.Name)
		}
		variation, err = b.catalog.FindVariation(ctx, product.ID, *in.VariationID)
		if err != nil {
			return nil, err
		}
		if !variation.IsActive {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s (%s) is not available", product.Name, variation.Label)
		}
		available = variation.Stock
	}

	if in.Quantity > available && !product.AllowBackorder {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "only %d of %s in stock", max(available, 0), product.Name).
			WithDetails(map[string]any{"product_id": product.ID, "requested": in.Quantity, "available": max(available, 0)})
	}

	vendor, err := cache.Vendor(ctx, product.VendorID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "vendor for %s is unavailable", product.Name)
		}
		return nil, err
	}
	if vendor != nil && !vendor.Sellable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "vendor %s is not accepting orders", vendor.Name)
	}
	category, err := cache.Category(ctx, product.CategoryID)
	if err != nil {
		return nil, err
	}

	unit := resolveUnitPrice(product, variation, in.Price)
	lineTotal := money.LineTotal(unit, in.Quantity)
	snapshot, err := b.commission.Snapshot(ctx, commission.Input{
		ItemTotal: lineTotal,
		Product:   product,
		Category:  category,
		Vendor:    vendor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve commission")
	}

	item := models.OrderItem{
		LineKey:    fmt.Sprintf("L%03d", index+1),
		ProductID:  product.ID,
		VendorID:   product.VendorID,
		SKU:        product.SKU,
		Name:       product.Name,
		Quantity:   in.Quantity,
		UnitPrice:  unit,
		LineTotal:  lineTotal,
		Recurring:  product.Recurring.Enabled,
		Commission: snapshot,
	}
	if variation != nil {
		id := variation.ID
		label := variation.Label
		item.VariationID = &id
		item.VariationLabel = &label
		if variation.SKU != "" {
			item.SKU = variation.SKU
		}
	}

	return &BuiltLine{Item: item, Product: product, Vendor: vendor}, nil
}

// resolveUnitPrice prefers the variation price, then the product base
// price, then the client hint, then zero.
func resolveUnitPrice(product *models.Product, variation *models.ProductVariation, hint *decimal.Decimal) decimal.Decimal {
	if variation != nil && variation.Price.IsPositive() {
		return money.Round(variation.Price)
	}
	if base := BasePrice(product); base.IsPositive() {
		return base
	}
	if money.Positive(hint) {
		return money.Round(*hint)
	}
	return decimal.Zero
}

// BasePrice is the product's own price. The sale price wins only for
// best-price products with a sale price between zero and the regular price.
func BasePrice(product *models.Product) decimal.Decimal {
	if product.PriceType == enums.PriceTypeBest && product.SalePrice.Valid {
		sale := product.SalePrice.Decimal
		if sale.IsPositive() && sale.LessThan(product.RegularPrice) {
			return money.Round(sale)
		}
	}
	return money.Round(product.RegularPrice)
}
