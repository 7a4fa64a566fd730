package enums

import (
	"fmt"
	"strings"
)

// ProductSort is the browse ordering key accepted by the catalog listing.
type ProductSort string

const (
	ProductSortCreatedAt  ProductSort = "createdAt"
	ProductSortPrice      ProductSort = "price"
	ProductSortPopularity ProductSort = "popularity"
)

// Column returns the SQL column backing the sort key.
func (s ProductSort) Column() string {
	switch s {
	case ProductSortPrice:
		return "price_cents"
	case ProductSortPopularity:
		return "review_count"
	default:
		return "created_at"
	}
}

// ParseProductSort accepts the public sort names; empty means createdAt.
func ParseProductSort(value string) (ProductSort, error) {
	switch ProductSort(strings.TrimSpace(value)) {
	case "", ProductSortCreatedAt:
		return ProductSortCreatedAt, nil
	case ProductSortPrice:
		return ProductSortPrice, nil
	case ProductSortPopularity:
		return ProductSortPopularity, nil
	}
	return "", fmt.Errorf("invalid sort %q", value)
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ParseSortOrder defaults to desc.
func ParseSortOrder(value string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(value))) {
	case "", SortOrderDesc:
		return SortOrderDesc, nil
	case SortOrderAsc:
		return SortOrderAsc, nil
	}
	return "", fmt.Errorf("invalid order %q", value)
}
