package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Review is a rating left by a buyer. One live review per (user, product).
type Review struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_reviews_user_product,where:deleted_at IS NULL"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_reviews_user_product"`
	Rating    int       `gorm:"not null"`
	Comment   string    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
