package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/money"
)

// CouponRequest is what the coupon collaborator validates against.
type CouponRequest struct {
	Code     string
	Subtotal decimal.Decimal
	Items    []models.OrderItem
	UserID   *uuid.UUID
	Email    string
}

// CouponResult mirrors the coupon collaborator's reply. On rejection Status
// carries an HTTP-style status and Message the reason.
type CouponResult struct {
	Success      bool
	Discount     decimal.Decimal
	Code         string
	Handle       string
	FreeShipping bool
	Status       int
	Message      string
}

// CouponValidator is the external coupon service. Redeem increments usage
// once the order exists.
type CouponValidator interface {
	Validate(ctx context.Context, req CouponRequest) (CouponResult, error)
	Redeem(ctx context.Context, handle string, orderID uuid.UUID) error
}

// QuoteInput feeds the pricing engine.
type QuoteInput struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	CouponCode  string
	Items       []models.OrderItem
	UserID      *uuid.UUID
	Email       string
}

// Quote is the final money breakdown of an order.
type Quote struct {
	Subtotal     decimal.Decimal
	ShippingFee  decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	CouponCode   *string
	CouponHandle string
	FreeShipping bool
}

// Pricing applies coupon, discount and shipping to a built subtotal.
type Pricing struct {
	coupons CouponValidator
}

// NewPricing accepts a nil validator; coupon codes are then rejected.
func NewPricing(coupons CouponValidator) *Pricing {
	return &Pricing{coupons: coupons}
}

func (p *Pricing) Quote(ctx context.Context, in QuoteInput) (*Quote, error) {
	if in.ShippingFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping fee cannot be negative")
	}
	if in.Subtotal.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal cannot be negative")
	}

	quote := &Quote{
		Subtotal:    money.Round(in.Subtotal),
		ShippingFee: money.Round(in.ShippingFee),
		Discount:    decimal.Zero,
	}

	if in.CouponCode != "" {
		if p.coupons == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupons are not accepted")
		}
		res, err := p.coupons.Validate(ctx, CouponRequest{
			Code:     in.CouponCode,
			Subtotal: quote.Subtotal,
			Items:    in.Items,
			UserID:   in.UserID,
			Email:    in.Email,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon validation unavailable")
		}
		if !res.Success {
			return nil, couponRejection(res)
		}
		quote.Discount = money.NonNegative(money.Round(res.Discount))
		code := res.Code
		if code == "" {
			code = in.CouponCode
		}
		quote.CouponCode = &code
		quote.CouponHandle = res.Handle
		quote.FreeShipping = res.FreeShipping
		if res.FreeShipping {
			quote.ShippingFee = decimal.Zero
		}
	}

	quote.Total = Total(quote.Subtotal, quote.ShippingFee, quote.Discount)
	return quote, nil
}

// Total is max(round(subtotal + shipping − discount, 2), 0).
func Total(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	return money.NonNegative(money.Round(subtotal.Add(shipping).Sub(discount)))
}

func couponRejection(res CouponResult) error {
	msg := res.Message
	if msg == "" {
		msg = "coupon is not valid"
	}
	code := pkgerrors.CodeValidation
	switch res.Status {
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusConflict:
		code = pkgerrors.CodeConflict
	}
	return pkgerrors.New(code, msg).WithDetails(map[string]any{"status": res.Status})
}
