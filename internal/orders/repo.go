package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository persists orders and their frozen line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID *uuid.UUID, page pagination.Page) ([]models.Order, int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkStockApplied(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("title ASC").Order("id ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List pages through orders newest first. A nil userID lists every order.
func (r *repository) List(ctx context.Context, userID *uuid.UUID, page pagination.Page) ([]models.Order, int64, error) {
	page = page.Normalize()
	scope := func(tx *gorm.DB) *gorm.DB {
		if userID != nil {
			return tx.Where("user_id = ?", *userID)
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("title ASC").Order("id ASC")
		}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

// MarkPaid settles a pending, unpaid order. False means another request got there first.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", id, enums.OrderStatusPending, enums.PaymentStatusUnpaid).
		Updates(map[string]any{
			"status":         enums.OrderStatusPaid,
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        paidAt,
			"updated_at":     paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkStockApplied(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND stock_applied_at IS NULL", id).
		Updates(map[string]any{"stock_applied_at": at, "updated_at": at})
	return res.RowsAffected == 1, res.Error
}

// UpdateStatus moves an order from one status to another, guarded on the current value.
// Moving to paid also settles the payment.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	changes := map[string]any{"status": to, "updated_at": at}
	if to == enums.OrderStatusPaid {
		changes["payment_status"] = enums.PaymentStatusPaid
		changes["paid_at"] = at
	}
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND status = ?", id, from)
	if to == enums.OrderStatusCancelled {
		q = q.Where("stock_applied_at IS NULL")
	}
	res := q.Updates(changes)
	return res.RowsAffected == 1, res.Error
}

// HasPurchased reports whether userID has a paid, shipped or delivered order containing productID.
func (r *repository) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND order_items.product_id = ?", userID, productID).
		Where("orders.status IN ?", enums.ReviewableOrderStatuses()).
		Count(&n).Error
	return n > 0, err
}

// FindPendingBefore returns unpaid pending orders created before cutoff, oldest first.
func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND created_at < ?", enums.OrderStatusPending, enums.PaymentStatusUnpaid, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
