package coupons

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

type CouponDTO struct {
	ID            uuid.UUID          `json:"id"`
	Code          string             `json:"code"`
	Description   string             `json:"description"`
	DiscountType  enums.DiscountType `json:"discount_type"`
	DiscountValue int64              `json:"discount_value"`
	MinOrder      money.Amount       `json:"min_order"`
	MaxUses       int                `json:"max_uses"`
	UsedCount     int                `json:"used_count"`
	StartsAt      *time.Time         `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type CreateCouponRequest struct {
	Code          string             `json:"code" validate:"required,min=3,max=40,alphanum"`
	Description   string             `json:"description" validate:"max=500"`
	DiscountType  enums.DiscountType `json:"discount_type" validate:"required,oneof=percent fixed"`
	DiscountValue int64              `json:"discount_value" validate:"gt=0"`
	MinOrderCents int64              `json:"min_order_cents" validate:"gte=0"`
	MaxUses       int                `json:"max_uses" validate:"gte=0"`
	StartsAt      *time.Time         `json:"starts_at"`
	ExpiresAt     *time.Time         `json:"expires_at"`
	IsActive      *bool              `json:"is_active"`
}

type UpdateCouponRequest struct {
	Description   *string             `json:"description" validate:"omitempty,max=500"`
	DiscountType  *enums.DiscountType `json:"discount_type" validate:"omitempty,oneof=percent fixed"`
	DiscountValue *int64              `json:"discount_value" validate:"omitempty,gt=0"`
	MinOrderCents *int64              `json:"min_order_cents" validate:"omitempty,gte=0"`
	MaxUses       *int                `json:"max_uses" validate:"omitempty,gte=0"`
	StartsAt      *time.Time          `json:"starts_at"`
	ExpiresAt     *time.Time          `json:"expires_at"`
	IsActive      *bool               `json:"is_active"`
}

func FromModel(c *models.Coupon) CouponDTO {
	return CouponDTO{
		ID:            c.ID,
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinOrder:      money.NewAmount(c.MinOrderCents),
		MaxUses:       c.MaxUses,
		UsedCount:     c.UsedCount,
		StartsAt:      c.StartsAt,
		ExpiresAt:     c.ExpiresAt,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
