// Package money holds the decimal rules shared by every monetary field:
// amounts are exact decimals with two fractional digits.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept for every amount.
const Scale int32 = 2

// Max is the largest amount a NUMERIC(14,2) column holds.
var Max = decimal.RequireFromString("999999999999.99")

var (
	ErrNegative  = errors.New("amount must not be negative")
	ErrPrecision = fmt.Errorf("amount must have at most %d decimal places", Scale)
	ErrTooLarge  = fmt.Errorf("amount must not exceed %s", Max.StringFixed(Scale))
)

// Zero is 0.00.
var Zero = decimal.New(0, -Scale)

// Round rounds half away from zero to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Validate rejects negative amounts, amounts above Max and amounts with
// more fractional digits than Scale.
func Validate(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegative
	}
	if d.GreaterThan(Max) {
		return ErrTooLarge
	}
	if !d.Equal(d.Truncate(Scale)) {
		return ErrPrecision
	}
	return nil
}

// Times multiplies a unit price by a quantity and rounds to Scale.
func Times(unit decimal.Decimal, qty int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(qty))))
}

// InRange reports whether d fits an amount column.
func InRange(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(Max)
}
