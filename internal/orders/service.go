package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockWriter decrements product stock with a guard against going negative.
type StockWriter interface {
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service drives the cart -> order -> payment -> stock flow.
type Service interface {
	Create(ctx context.Context, principal auth.Principal, req CreateOrderRequest) (*OrderDTO, error)
	List(ctx context.Context, principal auth.Principal, all bool, page pagination.Page) ([]OrderDTO, pagination.Meta, error)
	Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error)
	SimulatePayment(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error)
	UpdateStockAfterOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, status string) (*OrderDTO, error)
}

type ServiceParams struct {
	Repo     Repository
	Carts    cart.CartRepository
	Coupons  coupons.Redeemer
	TxRunner txRunner
	// Stock binds a stock writer to the running transaction.
	Stock   func(tx *gorm.DB) StockWriter
	Gateway payments.Gateway
	Outbox  outbox.Emitter
	Events  events.Publisher
	// ProductCache is invalidated after stock moves; optional.
	ProductCache cacheInvalidator
	Metrics      *metrics.OrderMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo    Repository
	carts   cart.CartRepository
	coupons coupons.Redeemer
	tx      txRunner
	stock   func(tx *gorm.DB) StockWriter
	gateway payments.Gateway
	outbox  outbox.Emitter
	events  events.Publisher
	cache   cacheInvalidator
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("order repository required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon redeemer required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock writer required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Events == nil:
		return nil, fmt.Errorf("event publisher required")
	}
	s := &service{
		repo:    params.Repo,
		carts:   params.Carts,
		coupons: params.Coupons,
		tx:      params.TxRunner,
		stock:   params.Stock,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		events:  params.Events,
		cache:   params.ProductCache,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     params.Now,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, principal auth.Principal, req CreateOrderRequest) (*OrderDTO, error) {
	if principal.IsAnonymous() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	now := s.now().UTC()

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		c, err := carts.FindByUserID(ctx, principal.UserID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(c.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		items := snapshotItems(c.Items)
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "none of the products in the cart are available")
		}
		var subtotal int64
		for _, item := range items {
			subtotal += item.LineTotalCents
		}

		order = &models.Order{
			UserID:        principal.UserID,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusUnpaid,
			SubtotalCents: subtotal,
			TotalCents:    subtotal,
			Items:         items,
		}

		if req.CouponCode != nil && coupons.NormalizeCode(*req.CouponCode) != "" {
			redemption, err := s.coupons.Resolve(ctx, tx, *req.CouponCode, subtotal, now)
			if err != nil {
				return err
			}
			if err := s.coupons.Redeem(ctx, tx, redemption.CouponID); err != nil {
				return err
			}
			code := redemption.Code
			order.CouponCode = &code
			order.DiscountCents = redemption.DiscountCents
			order.TotalCents = subtotal - redemption.DiscountCents
		}

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := carts.ClearItems(ctx, c.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if err := carts.UpdateTotal(ctx, c.ID, 0); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart total")
		}

		return s.emit(ctx, tx, principal, order, enums.EventOrderCreated, outbox.OrderCreated{
			OrderID:       order.ID,
			UserID:        order.UserID,
			SubtotalCents: order.SubtotalCents,
			DiscountCents: order.DiscountCents,
			TotalCents:    order.TotalCents,
			CouponCode:    order.CouponCode,
			Items:         outboxLines(order.Items),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated()
	s.publish(ctx, events.OrderPlaced, order)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"total_cents": order.TotalCents,
	}), "order created")
	return FromModel(order), nil
}

func (s *service) List(ctx context.Context, principal auth.Principal, all bool, page pagination.Page) ([]OrderDTO, pagination.Meta, error) {
	if principal.IsAnonymous() {
		return nil, pagination.Meta{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	var userID *uuid.UUID
	if !all || !principal.IsAdmin() {
		id := principal.UserID
		userID = &id
	}
	rows, total, err := s.repo.List(ctx, userID, page)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return FromModels(rows), pagination.NewMeta(page, total), nil
}

func (s *service) Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadVisible(ctx, s.repo, principal, id)
	if err != nil {
		return nil, err
	}
	return FromModel(order), nil
}

func (s *service) SimulatePayment(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadVisible(ctx, s.repo, principal, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
	}
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusUnpaid {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order in status %s cannot be paid", order.Status)
	}

	started := s.now()
	result, err := s.gateway.Charge(ctx, payments.Charge{OrderID: order.ID, AmountCents: order.TotalCents})
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment was interrupted")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment failed")
	}
	paidAt := result.SettledAt.UTC()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkPaid(ctx, order.ID, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
		}
		return s.emit(ctx, tx, principal, order, enums.EventOrderPaid, outbox.OrderPaid{
			OrderID:    order.ID,
			UserID:     order.UserID,
			TotalCents: order.TotalCents,
		})
	})
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusPaid
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaidAt = &paidAt
	s.metrics.ObservePaid(s.now().Sub(started))
	s.publish(ctx, events.OrderPaid, order)
	return FromModel(order), nil
}

func (s *service) UpdateStockAfterOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*OrderDTO, error) {
	now := s.now().UTC()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.loadVisible(ctx, repo, principal, id)
		if err != nil {
			return err
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has not been paid")
		}
		if order.StockAppliedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock was already updated for this order")
		}

		stock := s.stock(tx)
		for _, item := range order.Items {
			ok, err := stock.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !ok {
				return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %q", item.Title).
					WithDetails(map[string]any{"product_id": item.ProductID, "requested": item.Quantity})
			}
		}

		ok, err := repo.MarkStockApplied(ctx, order.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stock applied")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock was already updated for this order")
		}
		return s.emit(ctx, tx, principal, order, enums.EventOrderStockApplied, outbox.OrderStockApplied{
			OrderID: order.ID,
			Items:   outboxLines(order.Items),
		})
	})
	if err != nil {
		return nil, err
	}

	order.StockAppliedAt = &now
	s.metrics.IncStockApplied()
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return FromModel(order), nil
}

func (s *service) UpdateStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, status string) (*OrderDTO, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can change order status")
	}
	next, err := enums.ParseOrderStatus(status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	now := s.now().UTC()

	var order *models.Order
	var previous enums.OrderStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.loadVisible(ctx, repo, principal, id)
		if err != nil {
			return err
		}
		previous = order.Status
		if !previous.CanTransitionTo(next) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", previous, next).
				WithDetails(map[string]any{"from": previous, "to": next})
		}
		if next == enums.OrderStatusCancelled && order.StockAppliedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order stock was already applied and cannot be cancelled")
		}
		ok, err := repo.UpdateStatus(ctx, order.ID, previous, next, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		return s.emit(ctx, tx, principal, order, enums.EventOrderStatusChanged, outbox.OrderStatusChanged{
			OrderID: order.ID,
			From:    string(previous),
			To:      string(next),
		})
	})
	if err != nil {
		return nil, err
	}

	order.Status = next
	if next == enums.OrderStatusPaid {
		order.PaymentStatus = enums.PaymentStatusPaid
		order.PaidAt = &now
	}
	s.metrics.IncStatusChange(string(next))
	s.publish(ctx, events.OrderStatusChanged, order)
	return FromModel(order), nil
}

// loadVisible hides orders from everyone but their owner and admins.
func (s *service) loadVisible(ctx context.Context, repo Repository, principal auth.Principal, id uuid.UUID) (*models.Order, error) {
	if principal.IsAnonymous() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !principal.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, principal auth.Principal, order *models.Order, eventType enums.OutboxEventType, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.Actor{UserID: principal.UserID, Role: string(principal.Role)},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order event")
	}
	return nil
}

func (s *service) publish(ctx context.Context, name events.Name, order *models.Order) {
	s.events.Publish(ctx, events.New(name, events.OrderPayload{
		OrderID:    order.ID,
		BuyerID:    order.UserID,
		SellerIDs:  sellerIDs(order.Items),
		Status:     string(order.Status),
		TotalCents: order.TotalCents,
	}))
}

// snapshotItems freezes the cart lines whose product still exists.
func snapshotItems(lines []models.CartItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		p := line.Product
		if p == nil || p.DeletedAt.Valid {
			continue
		}
		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			SellerID:       p.SellerID,
			Title:          p.Title,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: int64(line.Quantity) * line.UnitPriceCents,
		})
	}
	return items
}

func sellerIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		out = append(out, item.SellerID)
	}
	return out
}

func outboxLines(items []models.OrderItem) []outbox.OrderLine {
	out := make([]outbox.OrderLine, 0, len(items))
	for _, item := range items {
		out = append(out, outbox.OrderLine{
			ProductID:      item.ProductID,
			SellerID:       item.SellerID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return out
}
