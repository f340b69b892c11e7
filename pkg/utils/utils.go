package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fraction digits every amount is kept at.
const MoneyPlaces = 2

// Tolerance is the smallest monetary difference that is considered real: one cent.
var Tolerance = decimal.New(1, -MoneyPlaces)

// RoundMoney rounds an amount to whole cents (half away from zero).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// IsZero reports whether an amount is below one cent in magnitude.
func IsZero(d decimal.Decimal) bool {
	return d.Abs().LessThan(Tolerance)
}

// WithinTolerance reports whether two amounts differ by less than one cent.
func WithinTolerance(a, b decimal.Decimal) bool {
	return IsZero(a.Sub(b))
}

// SumMoney adds amounts after rounding each of them to cents.
func SumMoney(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(RoundMoney(a))
	}
	return total
}
