package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
)

// IsValid reports whether the value matches a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateProduct
}

// OutboxEventType is the integration event name published to Pub/Sub.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderStockApplied  OutboxEventType = "order_stock_applied"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventProductCreated     OutboxEventType = "product_created"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderStockApplied,
	EventOrderStatusChanged,
	EventProductCreated,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
