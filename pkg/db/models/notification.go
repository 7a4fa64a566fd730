package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Notification is an inbox entry written by event listeners.
type Notification struct {
	ID                uuid.UUID              `gorm:"type:uuid;primaryKey"`
	RecipientID       uuid.UUID              `gorm:"type:uuid;not null;index:ix_notifications_recipient_created,priority:1"`
	Type              enums.NotificationType `gorm:"type:text;not null"`
	Title             string                 `gorm:"not null"`
	Message           string                 `gorm:"not null"`
	RelatedEntityType *enums.EntityType      `gorm:"type:text"`
	RelatedEntityID   *uuid.UUID             `gorm:"type:uuid"`
	IsRead            bool                   `gorm:"not null"`
	ReadAt            *time.Time
	CreatedAt         time.Time      `gorm:"index:ix_notifications_recipient_created,priority:2"`
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}
