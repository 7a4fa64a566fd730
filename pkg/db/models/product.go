package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/marketplace-backend/pkg/db/types"
)

// Product is a catalog entry owned by a seller. Stock only moves down through
// the post-payment stock update.
type Product struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey"`
	SellerID    uuid.UUID          `gorm:"type:uuid;not null;index"`
	Title       string             `gorm:"not null;uniqueIndex:ux_products_title,where:deleted_at IS NULL"`
	Description string             `gorm:"not null"`
	PriceCents  int64              `gorm:"not null"`
	Stock       int                `gorm:"not null"`
	Images      dbtypes.StringList `gorm:"not null"`
	IsActive    bool               `gorm:"not null;index"`
	ReviewCount int                `gorm:"not null"`
	RatingAvg   float64            `gorm:"not null"`
	Categories  []Category         `gorm:"many2many:product_categories"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	if p.Images == nil {
		p.Images = dbtypes.StringList{}
	}
	return nil
}
