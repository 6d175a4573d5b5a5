// Package money holds the rounding rules shared by every monetary computation.
// All values are carried as decimals and rounded half-up to two places at each
// computation boundary.
package money

import "github.com/shopspring/decimal"

const scale = 2

// Round rounds to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// FromFloat converts and rounds a float input.
func FromFloat(v float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(v))
}

// LineTotal returns round(unit × qty).
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(qty))))
}

// NonNegative clamps negative values to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Percent returns base × pct / 100.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}

// Positive reports whether d is strictly greater than zero.
func Positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}
