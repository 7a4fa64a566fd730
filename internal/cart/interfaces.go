package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// CartRepository is the persistence surface the cart service needs.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	UpdateTotal(ctx context.Context, cartID uuid.UUID, totalCents int64) error
}

// ProductReader resolves the live product a cart line points at.
type ProductReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
