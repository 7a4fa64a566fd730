package enums

import "fmt"

// NotificationType classifies an inbox entry.
type NotificationType string

const (
	NotificationTypeNewProduct         NotificationType = "new_product"
	NotificationTypeProductApproved    NotificationType = "product_approved"
	NotificationTypeProductRejected    NotificationType = "product_rejected"
	NotificationTypeOrderPlaced        NotificationType = "order_placed"
	NotificationTypeOrderReceived      NotificationType = "order_received"
	NotificationTypeOrderPaid          NotificationType = "order_paid"
	NotificationTypeOrderStatusChanged NotificationType = "order_status_changed"
	NotificationTypeNewReview          NotificationType = "new_review"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeNewProduct,
	NotificationTypeProductApproved,
	NotificationTypeProductRejected,
	NotificationTypeOrderPlaced,
	NotificationTypeOrderReceived,
	NotificationTypeOrderPaid,
	NotificationTypeOrderStatusChanged,
	NotificationTypeNewReview,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// EntityType names the resource a notification points at.
type EntityType string

const (
	EntityTypeProduct EntityType = "product"
	EntityTypeOrder   EntityType = "order"
	EntityTypeUser    EntityType = "user"
	EntityTypeReview  EntityType = "review"
)

func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeProduct, EntityTypeOrder, EntityTypeUser, EntityTypeReview:
		return true
	}
	return false
}
