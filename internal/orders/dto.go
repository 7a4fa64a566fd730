package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

type CreateOrderRequest struct {
	CouponCode *string `json:"coupon_code" validate:"omitempty,max=40"`
}

type OrderIDRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered cancelled"`
}

type OrderItemDTO struct {
	ProductID uuid.UUID    `json:"product_id"`
	SellerID  uuid.UUID    `json:"seller_id"`
	Title     string       `json:"title"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	LineTotal money.Amount `json:"line_total"`
}

type OrderDTO struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	Subtotal       money.Amount        `json:"subtotal"`
	Discount       money.Amount        `json:"discount"`
	Total          money.Amount        `json:"total"`
	CouponCode     *string             `json:"coupon_code,omitempty"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
	StockAppliedAt *time.Time          `json:"stock_applied_at,omitempty"`
	Items          []OrderItemDTO      `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func FromModel(o *models.Order) *OrderDTO {
	out := &OrderDTO{
		ID:             o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		Subtotal:       money.NewAmount(o.SubtotalCents),
		Discount:       money.NewAmount(o.DiscountCents),
		Total:          money.NewAmount(o.TotalCents),
		CouponCode:     o.CouponCode,
		PaidAt:         o.PaidAt,
		StockAppliedAt: o.StockAppliedAt,
		Items:          make([]OrderItemDTO, 0, len(o.Items)),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderItemDTO{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money.NewAmount(item.UnitPriceCents),
			LineTotal: money.NewAmount(item.LineTotalCents),
		})
	}
	return out
}

func FromModels(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
