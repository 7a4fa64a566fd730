package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the single live basket of a user. TotalCents is derived from Items
// and rewritten on every mutation.
type Cart struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_carts_user"`
	TotalCents int64      `gorm:"not null"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem is one product line; UnitPriceCents is the price seen when the line
// was last touched.
type CartItem struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	CartID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	Quantity       int       `gorm:"not null"`
	UnitPriceCents int64     `gorm:"not null"`
	Position       int       `gorm:"not null"`
	Product        *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
