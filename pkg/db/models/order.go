package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Order is an immutable snapshot of a cart plus its payment/fulfillment state.
type Order struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	Status         enums.OrderStatus   `gorm:"type:text;not null;index"`
	PaymentStatus  enums.PaymentStatus `gorm:"type:text;not null"`
	SubtotalCents  int64               `gorm:"not null"`
	DiscountCents  int64               `gorm:"not null"`
	TotalCents     int64               `gorm:"not null"`
	CouponCode     *string
	PaidAt         *time.Time
	StockAppliedAt *time.Time
	Items          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

type OrderItem struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;index"`
	SellerID       uuid.UUID `gorm:"type:uuid;not null"`
	Title          string    `gorm:"not null"`
	Quantity       int       `gorm:"not null"`
	UnitPriceCents int64     `gorm:"not null"`
	LineTotalCents int64     `gorm:"not null"`
	CreatedAt      time.Time
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
