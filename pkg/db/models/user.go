package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// User is a marketplace account. Accounts are deactivated, never deleted.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	FullName     string         `gorm:"not null"`
	Email        string         `gorm:"not null;uniqueIndex:ux_users_email"`
	PasswordHash string         `gorm:"not null"`
	Role         enums.UserRole `gorm:"type:text;not null"`
	IsActive     bool           `gorm:"not null"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
