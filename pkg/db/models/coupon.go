package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Coupon is an order-level discount code. MaxUses of zero means unlimited.
type Coupon struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Code          string             `gorm:"not null;uniqueIndex:ux_coupons_code,where:deleted_at IS NULL"`
	Description   string             `gorm:"not null"`
	DiscountType  enums.DiscountType `gorm:"type:text;not null"`
	DiscountValue int64              `gorm:"not null"`
	MinOrderCents int64              `gorm:"not null"`
	MaxUses       int                `gorm:"not null"`
	UsedCount     int                `gorm:"not null"`
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	IsActive      bool `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
