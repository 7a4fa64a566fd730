// Package events is the in-process notification emitter. Producers publish
// after their transaction commits; listeners run off the request path.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Name string

const (
	NewProduct         Name = "NEW_PRODUCT"
	ProductApproved    Name = "PRODUCT_APPROVED"
	ProductRejected    Name = "PRODUCT_REJECTED"
	OrderPlaced        Name = "ORDER_PLACED"
	OrderPaid          Name = "ORDER_PAID"
	OrderStatusChanged Name = "ORDER_STATUS_CHANGED"
	ReviewCreated      Name = "REVIEW_CREATED"
)

type Event struct {
	Name       Name
	Payload    any
	OccurredAt time.Time
}

// New stamps an event with the current time.
func New(name Name, payload any) Event {
	return Event{Name: name, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Handler reacts to one event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, evt Event) error

// Bus is the emitter injected into services.
type Bus interface {
	Publish(ctx context.Context, evt Event)
	Subscribe(name Name, handler Handler)
	Close(ctx context.Context) error
}

// Publisher is the producer-only view services depend on.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type ProductPayload struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Title     string
	ActorID   uuid.UUID
}

type OrderPayload struct {
	OrderID    uuid.UUID
	BuyerID    uuid.UUID
	SellerIDs  []uuid.UUID
	Status     string
	TotalCents int64
}

type ReviewPayload struct {
	ReviewID     uuid.UUID
	ProductID    uuid.UUID
	ProductTitle string
	SellerID     uuid.UUID
	ReviewerID   uuid.UUID
	Rating       int
}
