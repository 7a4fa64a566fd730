package outbox

import "github.com/google/uuid"

type OrderLine struct {
	ProductID      uuid.UUID `json:"productId"`
	SellerID       uuid.UUID `json:"sellerId"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
}

type OrderCreated struct {
	OrderID       uuid.UUID   `json:"orderId"`
	UserID        uuid.UUID   `json:"userId"`
	SubtotalCents int64       `json:"subtotalCents"`
	DiscountCents int64       `json:"discountCents"`
	TotalCents    int64       `json:"totalCents"`
	CouponCode    *string     `json:"couponCode,omitempty"`
	Items         []OrderLine `json:"items"`
}

type OrderPaid struct {
	OrderID    uuid.UUID `json:"orderId"`
	UserID     uuid.UUID `json:"userId"`
	TotalCents int64     `json:"totalCents"`
}

type OrderStockApplied struct {
	OrderID uuid.UUID   `json:"orderId"`
	Items   []OrderLine `json:"items"`
}

type OrderStatusChanged struct {
	OrderID uuid.UUID `json:"orderId"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

type ProductCreated struct {
	ProductID  uuid.UUID `json:"productId"`
	SellerID   uuid.UUID `json:"sellerId"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"priceCents"`
	Stock      int       `json:"stock"`
}
