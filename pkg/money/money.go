// Package money provides fixed-point helpers over shopspring/decimal.
// All monetary amounts in the system are decimal values rounded to two
// places with deterministic half-up rounding; these helpers are the only
// place rounding happens so every caller computes the same result.
package money

import "github.com/shopspring/decimal"

const places = 2

var hundred = decimal.NewFromInt(100)

// Zero returns the zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// FromInt builds an amount from whole currency units.
func FromInt(units int64) decimal.Decimal {
	return decimal.NewFromInt(units)
}

// FromString parses a decimal amount string.
func FromString(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(d), nil
}

// Round normalizes an amount to two decimal places, half up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// Percent returns pct percent of base, rounded.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Clamp restricts d to the inclusive range [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// IsNegative reports whether d is below zero.
func IsNegative(d decimal.Decimal) bool {
	return d.IsNegative()
}
