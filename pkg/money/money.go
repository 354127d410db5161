// Package money holds the decimal helpers shared by the ledger and the
// reporting code. Amounts are shopspring decimals end to end; floats only
// appear for rates and percentages.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Hundred is the percent denominator.
var Hundred = decimal.NewFromInt(100)

// Round rounds an amount to cents. shopspring rounds half away from zero,
// which is half-up for the non-negative amounts the ledger deals in.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// IsCents reports whether d carries no more than two decimal places.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// PercentOf returns amount × percent / 100 rounded to cents.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(percent).Div(Hundred))
}

// ClampPercent forces a percentage into [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(Hundred) {
		return Hundred
	}
	return p
}

// Ratio returns part / whole × 100, or 0 when whole is zero.
func Ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

// RoundRate rounds a rate or percentage to two decimals.
func RoundRate(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*100) / 100
}

// Float converts a cent-rounded amount for metric math and gauges.
func Float(d decimal.Decimal) float64 {
	return Round(d).InexactFloat64()
}
