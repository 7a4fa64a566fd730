package enums

import (
	"fmt"
	"strings"
)

// DiscountType selects how a coupon value is interpreted.
type DiscountType string

const (
	// DiscountTypePercent takes value as a whole percentage of the subtotal.
	DiscountTypePercent DiscountType = "percent"
	// DiscountTypeFixed takes value as an amount in cents.
	DiscountTypeFixed DiscountType = "fixed"
)

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercent || d == DiscountTypeFixed
}

func ParseDiscountType(value string) (DiscountType, error) {
	normalized := DiscountType(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}
