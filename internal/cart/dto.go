package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type CartItemDTO struct {
	ProductID uuid.UUID    `json:"product_id"`
	Title     string       `json:"title"`
	Images    []string     `json:"images"`
	IsActive  bool         `json:"is_active"`
	Stock     int          `json:"stock"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	LineTotal money.Amount `json:"line_total"`
}

type CartDTO struct {
	ID        *uuid.UUID    `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	Items     []CartItemDTO `json:"items"`
	ItemCount int           `json:"item_count"`
	Total     money.Amount  `json:"total"`
}

// EmptyCart is the view returned before a user has added anything.
func EmptyCart(userID uuid.UUID) *CartDTO {
	return &CartDTO{UserID: userID, Items: []CartItemDTO{}, Total: money.NewAmount(0)}
}

func FromModel(c *models.Cart) *CartDTO {
	out := &CartDTO{
		ID:     &c.ID,
		UserID: c.UserID,
		Items:  make([]CartItemDTO, 0, len(c.Items)),
		Total:  money.NewAmount(c.TotalCents),
	}
	for _, item := range c.Items {
		line := CartItemDTO{
			ProductID: item.ProductID,
			Images:    []string{},
			Quantity:  item.Quantity,
			UnitPrice: money.NewAmount(item.UnitPriceCents),
			LineTotal: money.NewAmount(int64(item.Quantity) * item.UnitPriceCents),
		}
		if p := item.Product; p != nil {
			line.Title = p.Title
			line.Stock = p.Stock
			line.IsActive = p.IsActive && !p.DeletedAt.Valid
			if len(p.Images) > 0 {
				line.Images = append([]string(nil), p.Images...)
			}
		}
		out.ItemCount += item.Quantity
		out.Items = append(out.Items, line)
	}
	return out
}

// Total sums quantity times unit price over every line.
func Total(items []models.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	return total
}
