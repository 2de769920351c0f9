package utils

import (
	"github.com/shopspring/decimal"
)

// Monetary amounts are fixed-point with two fractional digits. Rounding is half-up
// and happens only at declared rounding points; intermediate arithmetic is exact.

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to two digits, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SplitGross splits a gross amount into base and VAT for an exact percentage rate.
// base = gross / (1 + rate/100), rounded half-up; vat = gross - base, so the parts
// always sum back to the gross exactly.
func SplitGross(gross, rate decimal.Decimal) (base, vat decimal.Decimal) {
	if rate.IsZero() {
		return gross, decimal.Zero
	}
	divisor := hundred.Add(rate).Div(hundred)
	base = gross.DivRound(divisor, 2)
	vat = gross.Sub(base)
	return base, vat
}

// VatFromBase computes VAT on a net base at an exact percentage rate, half-up.
func VatFromBase(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).DivRound(hundred, 2)
}

// ReconcilesWithinTolerance reports whether vat is within tol of base * rate / 100.
func ReconcilesWithinTolerance(base, vat, rate, tol decimal.Decimal) bool {
	expected := base.Mul(rate).Div(hundred)
	return vat.Sub(expected).Abs().LessThanOrEqual(tol)
}
