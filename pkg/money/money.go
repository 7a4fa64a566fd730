// Package money renders integer cent amounts for API responses.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal converts cents into a two-place decimal amount.
func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a fixed two-decimal string, e.g. 1999 -> "19.99".
func Format(cents int64) string {
	return Decimal(cents).StringFixed(2)
}

// ParseCents converts a decimal string into cents, rejecting sub-cent precision.
func ParseCents(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	return shifted.IntPart(), nil
}

// Percent returns floor(cents * pct / 100).
func Percent(cents int64, pct int64) int64 {
	return decimal.NewFromInt(cents).
		Mul(decimal.NewFromInt(pct)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// Amount is the JSON shape used for money fields.
type Amount struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func NewAmount(cents int64) Amount {
	return Amount{Cents: cents, Display: Format(cents)}
}
