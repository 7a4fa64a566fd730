package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type subscriber interface {
	Subscribe(name events.Name, handler events.Handler)
}

// RegisterListeners subscribes the inbox writers to every domain event that
// produces a notification.
func RegisterListeners(bus subscriber, svc Service, logg *logger.Logger) {
	if logg == nil {
		logg = logger.Nop()
	}
	l := &listeners{svc: svc, logg: logg}

	bus.Subscribe(events.NewProduct, l.traced(l.onNewProduct))
	bus.Subscribe(events.ProductApproved, l.traced(l.onProductModerated))
	bus.Subscribe(events.ProductRejected, l.traced(l.onProductModerated))
	bus.Subscribe(events.OrderPlaced, l.traced(l.onOrderPlaced))
	bus.Subscribe(events.OrderPaid, l.traced(l.onOrderPaid))
	bus.Subscribe(events.OrderStatusChanged, l.traced(l.onOrderStatusChanged))
	bus.Subscribe(events.ReviewCreated, l.traced(l.onReviewCreated))
}

type listeners struct {
	svc  Service
	logg *logger.Logger
}

func (l *listeners) traced(h events.Handler) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		if err := h(ctx, evt); err != nil {
			return err
		}
		l.logg.Debug(ctx, fmt.Sprintf("notifications written for %s", evt.Name))
		return nil
	}
}

func (l *listeners) onNewProduct(ctx context.Context, evt events.Event) error {
	p, err := productPayload(evt)
	if err != nil {
		return err
	}
	return l.svc.Notify(ctx, NotifyInput{
		RecipientID: p.SellerID,
		Type:        enums.NotificationTypeNewProduct,
		Title:       "Product published",
		Message:     fmt.Sprintf("Your product %q is now listed.", p.Title),
		EntityType:  enums.EntityTypeProduct,
		EntityID:    p.ProductID,
	})
}

func (l *listeners) onProductModerated(ctx context.Context, evt events.Event) error {
	p, err := productPayload(evt)
	if err != nil {
		return err
	}
	in := NotifyInput{
		RecipientID: p.SellerID,
		EntityType:  enums.EntityTypeProduct,
		EntityID:    p.ProductID,
	}
	if evt.Name == events.ProductApproved {
		in.Type = enums.NotificationTypeProductApproved
		in.Title = "Product approved"
		in.Message = fmt.Sprintf("Your product %q was approved and is visible to buyers.", p.Title)
	} else {
		in.Type = enums.NotificationTypeProductRejected
		in.Title = "Product deactivated"
		in.Message = fmt.Sprintf("Your product %q was deactivated by an administrator.", p.Title)
	}
	return l.svc.Notify(ctx, in)
}

func (l *listeners) onOrderPlaced(ctx context.Context, evt events.Event) error {
	p, err := orderPayload(evt)
	if err != nil {
		return err
	}
	short := shortID(p.OrderID)
	inputs := []NotifyInput{{
		RecipientID: p.BuyerID,
		Type:        enums.NotificationTypeOrderPlaced,
		Title:       "Order placed",
		Message:     fmt.Sprintf("Order %s was placed. Complete payment to confirm it.", short),
		EntityType:  enums.EntityTypeOrder,
		EntityID:    p.OrderID,
	}}

	seen := map[uuid.UUID]struct{}{}
	for _, sellerID := range p.SellerIDs {
		if _, ok := seen[sellerID]; ok {
			continue
		}
		seen[sellerID] = struct{}{}
		inputs = append(inputs, NotifyInput{
			RecipientID: sellerID,
			Type:        enums.NotificationTypeOrderReceived,
			Title:       "New order received",
			Message:     fmt.Sprintf("Order %s includes your products.", short),
			EntityType:  enums.EntityTypeOrder,
			EntityID:    p.OrderID,
		})
	}
	return l.svc.Notify(ctx, inputs...)
}

func (l *listeners) onOrderPaid(ctx context.Context, evt events.Event) error {
	p, err := orderPayload(evt)
	if err != nil {
		return err
	}
	return l.svc.Notify(ctx, NotifyInput{
		RecipientID: p.BuyerID,
		Type:        enums.NotificationTypeOrderPaid,
		Title:       "Payment received",
		Message:     fmt.Sprintf("Payment for order %s was confirmed.", shortID(p.OrderID)),
		EntityType:  enums.EntityTypeOrder,
		EntityID:    p.OrderID,
	})
}

func (l *listeners) onOrderStatusChanged(ctx context.Context, evt events.Event) error {
	p, err := orderPayload(evt)
	if err != nil {
		return err
	}
	return l.svc.Notify(ctx, NotifyInput{
		RecipientID: p.BuyerID,
		Type:        enums.NotificationTypeOrderStatusChanged,
		Title:       "Order updated",
		Message:     fmt.Sprintf("Order %s is now %s.", shortID(p.OrderID), p.Status),
		EntityType:  enums.EntityTypeOrder,
		EntityID:    p.OrderID,
	})
}

func (l *listeners) onReviewCreated(ctx context.Context, evt events.Event) error {
	p, ok := evt.Payload.(events.ReviewPayload)
	if !ok {
		return payloadError(evt)
	}
	return l.svc.Notify(ctx, NotifyInput{
		RecipientID: p.SellerID,
		Type:        enums.NotificationTypeNewReview,
		Title:       "New review",
		Message:     fmt.Sprintf("%q received a %d-star review.", p.ProductTitle, p.Rating),
		EntityType:  enums.EntityTypeReview,
		EntityID:    p.ReviewID,
	})
}

func productPayload(evt events.Event) (events.ProductPayload, error) {
	p, ok := evt.Payload.(events.ProductPayload)
	if !ok {
		return events.ProductPayload{}, payloadError(evt)
	}
	return p, nil
}

func orderPayload(evt events.Event) (events.OrderPayload, error) {
	p, ok := evt.Payload.(events.OrderPayload)
	if !ok {
		return events.OrderPayload{}, payloadError(evt)
	}
	return p, nil
}

func payloadError(evt events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.Name)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
