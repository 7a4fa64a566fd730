package product

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// ListQuery holds the browse filters. Only active, live products are ever listed.
type ListQuery struct {
	Q             string
	CategoryID    *uuid.UUID
	SellerID      *uuid.UUID
	MinPriceCents *int64
	MaxPriceCents *int64
	Sort          enums.ProductSort
	Order         enums.SortOrder
	Page          pagination.Page
}

func (q ListQuery) normalize() ListQuery {
	q.Q = strings.TrimSpace(q.Q)
	if q.Sort == "" {
		q.Sort = enums.ProductSortCreatedAt
	}
	if q.Order == "" {
		q.Order = enums.SortOrderDesc
	}
	q.Page = q.Page.Normalize()
	return q
}

// fingerprint is a stable digest of the normalized query, used as the cache key suffix.
func (q ListQuery) fingerprint() string {
	parts := []string{
		"q=" + strings.ToLower(q.Q),
		"cat=" + uuidString(q.CategoryID),
		"seller=" + uuidString(q.SellerID),
		"min=" + int64String(q.MinPriceCents),
		"max=" + int64String(q.MaxPriceCents),
		"sort=" + string(q.Sort),
		"order=" + string(q.Order),
		fmt.Sprintf("page=%d", q.Page.Page),
		fmt.Sprintf("limit=%d", q.Page.Limit),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:16])
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func int64String(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
