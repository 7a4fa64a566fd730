package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 48 * time.Hour
	orderExpiryBatch       = 200
)

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	UpdateStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, status string) (*orders.OrderDTO, error)
}

type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders pendingOrderReader
	Status orderCanceller
	TTL    time.Duration
}

// NewOrderExpiryJob cancels orders that stayed pending and unpaid past TTL.
// Cancellation goes through the orders service so buyers are notified and the
// outbox records the transition.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Status == nil {
		return nil, fmt.Errorf("order status service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		status: params.Status,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders pendingOrderReader
	status orderCanceller
	ttl    time.Duration
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.FindPendingBefore(ctx, cutoff, orderExpiryBatch)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}

	var errs error
	cancelled := 0
	for _, order := range stale {
		_, err := j.status.UpdateStatus(ctx, auth.System(), order.ID, string(enums.OrderStatusCancelled))
		switch {
		case err == nil:
			cancelled++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// paid between the query and the update
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"cancelled":  cancelled,
	}), "order expiry complete")
	return errs
}
