package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type countingCache struct{ invalidations int }

func (c *countingCache) Invalidate(context.Context) { c.invalidations++ }

type fixture struct {
	svc     Service
	carts   cart.Service
	coupons coupons.Service
	conn    *gorm.DB
	events  *events.Recorder
	cache   *countingCache
}

func newFixture(t *testing.T, gateway payments.Gateway) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromConn(conn)
	cartRepo := cart.NewRepository(conn)

	carts, err := cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		TxRunner: client,
		Products: func(tx *gorm.DB) cart.ProductReader { return product.NewRepository(tx) },
	})
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn))
	require.NoError(t, err)

	if gateway == nil {
		gateway = payments.NewSimulator(0)
	}
	rec := events.NewRecorder()
	cache := &countingCache{}
	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		Carts:        cartRepo,
		Coupons:      couponSvc,
		TxRunner:     client,
		Stock:        func(tx *gorm.DB) StockWriter { return product.NewRepository(tx) },
		Gateway:      gateway,
		Outbox:       outbox.NewService(outbox.NewRepository(conn), nil),
		Events:       rec,
		ProductCache: cache,
		Metrics:      metrics.NewOrderMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, carts: carts, coupons: couponSvc, conn: conn, events: rec, cache: cache}
}

func buyer() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.UserRoleUser}
}

func adminPrincipal() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}
}

func (f *fixture) seedProduct(t *testing.T, title string, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{SellerID: uuid.New(), Title: title, PriceCents: price, Stock: stock, IsActive: true}
	require.NoError(t, f.conn.Create(p).Error)
	return p
}

func (f *fixture) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.Unscoped().First(&p, "id = ?", id).Error)
	return p.Stock
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&n).Error)
	return n
}

func TestCheckoutScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "P", 100, 15)

	c, err := f.carts.AddItem(ctx, user.UserID, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(200), c.Total.Cents)

	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(200), order.Total.Cents)
	assert.Equal(t, int64(200), order.Subtotal.Cents)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)
	assert.Equal(t, p.SellerID, order.Items[0].SellerID)

	c, err = f.carts.GetCart(ctx, user.UserID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, int64(0), c.Total.Cents)

	paid, err := f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	applied, err := f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	require.NoError(t, err)
	assert.NotNil(t, applied.StockAppliedAt)
	assert.Equal(t, 13, f.stockOf(t, p.ID))
	assert.Equal(t, 1, f.cache.invalidations)

	placed := f.events.Named(events.OrderPlaced)
	require.Len(t, placed, 1)
	payload := placed[0].Payload.(events.OrderPayload)
	assert.Equal(t, []uuid.UUID{p.SellerID}, payload.SellerIDs)
	assert.Len(t, f.events.Named(events.OrderPaid), 1)

	var outboxRows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&outboxRows).Error)
	types := make([]enums.OutboxEventType, 0, len(outboxRows))
	for _, row := range outboxRows {
		types = append(types, row.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{
		enums.EventOrderCreated, enums.EventOrderPaid, enums.EventOrderStockApplied,
	}, types)
}

func TestCreateOnEmptyCartCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()

	_, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	p := f.seedProduct(t, "Gone", 100, 5)
	_, err = f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.RemoveItem(ctx, user.UserID, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, user, CreateOrderRequest{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestCreateSkipsDeletedProducts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	keep := f.seedProduct(t, "Keep", 300, 5)
	drop := f.seedProduct(t, "Drop", 500, 5)

	_, err := f.carts.AddItem(ctx, user.UserID, keep.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user.UserID, drop.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Delete(drop).Error)

	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, keep.ID, order.Items[0].ProductID)
	assert.Equal(t, int64(300), order.Total.Cents)
}

func TestCreateWithCoupon(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "Lamp", 1000, 5)

	_, err := f.coupons.Create(ctx, coupons.CreateCouponRequest{Code: "TEN", DiscountType: enums.DiscountTypePercent, DiscountValue: 10, MaxUses: 1})
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, user.UserID, p.ID, 2)
	require.NoError(t, err)

	bad := "NOPE"
	_, err = f.svc.Create(ctx, user, CreateOrderRequest{CouponCode: &bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	c, err := f.carts.GetCart(ctx, user.UserID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "a rejected coupon leaves the cart intact")

	code := "ten"
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{CouponCode: &code})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), order.Subtotal.Cents)
	assert.Equal(t, int64(200), order.Discount.Cents)
	assert.Equal(t, int64(1800), order.Total.Cents)
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "TEN", *order.CouponCode)

	var coupon models.Coupon
	require.NoError(t, f.conn.First(&coupon, "code = ?", "TEN").Error)
	assert.Equal(t, 1, coupon.UsedCount)
}

func TestPaymentRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "Book", 100, 5)
	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)

	_, err = f.svc.SimulatePayment(ctx, buyer(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 4, f.stockOf(t, p.ID))
}

func TestPaymentOnCancelledOrderIsStateConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "Kite", 100, 5)
	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, adminPrincipal(), order.ID, "cancelled")
	require.NoError(t, err)
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestPaymentHonoursCancellation(t *testing.T) {
	f := newFixture(t, payments.NewSimulator(time.Hour))
	user := buyer()
	p := f.seedProduct(t, "Slow", 100, 5)
	_, err := f.carts.AddItem(context.Background(), user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(context.Background(), user, CreateOrderRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.Error(t, err)

	got, err := f.svc.Get(context.Background(), user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusUnpaid, got.PaymentStatus)
}

func TestStockUpdateIsAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	plenty := f.seedProduct(t, "Plenty", 100, 10)
	scarce := f.seedProduct(t, "Scarce", 100, 3)

	_, err := f.carts.AddItem(ctx, user.UserID, plenty.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user.UserID, scarce.ID, 3)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)

	// someone else bought the scarce item in the meantime
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", scarce.ID).Update("stock", 1).Error)

	_, err = f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 10, f.stockOf(t, plenty.ID))
	assert.Equal(t, 1, f.stockOf(t, scarce.ID))

	got, err := f.svc.Get(ctx, user, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StockAppliedAt)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	admin := adminPrincipal()
	p := f.seedProduct(t, "Drum", 100, 5)
	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, user, order.ID, "shipped")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateStatus(ctx, admin, order.ID, "shipped")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateStatus(ctx, admin, order.ID, "bogus")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)
	shipped, err := f.svc.UpdateStatus(ctx, admin, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)

	_, err = f.svc.UpdateStatus(ctx, admin, order.ID, "cancelled")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	delivered, err := f.svc.UpdateStatus(ctx, admin, order.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)

	changed := f.events.Named(events.OrderStatusChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, user.UserID, changed[1].Payload.(events.OrderPayload).BuyerID)
}

func TestListAndGetVisibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice, bob := buyer(), buyer()
	p := f.seedProduct(t, "Ball", 100, 50)

	for _, u := range []auth.Principal{alice, alice, bob} {
		_, err := f.carts.AddItem(ctx, u.UserID, p.ID, 1)
		require.NoError(t, err)
		_, err = f.svc.Create(ctx, u, CreateOrderRequest{})
		require.NoError(t, err)
	}

	mine, meta, err := f.svc.List(ctx, alice, false, pagination.Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, int64(2), meta.Total)

	mine, _, err = f.svc.List(ctx, alice, true, pagination.Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 2, "non-admins cannot widen the listing")

	all, meta, err := f.svc.List(ctx, adminPrincipal(), true, pagination.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(3), meta.Total)
	assert.Equal(t, 2, meta.TotalPages)

	_, err = f.svc.Get(ctx, bob, mine[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Get(ctx, adminPrincipal(), mine[0].ID)
	assert.NoError(t, err)
}

func TestHasPurchased(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "Sock", 100, 5)
	repo := NewRepository(f.conn)

	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)

	ok, err := repo.HasPurchased(ctx, user.UserID, p.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending orders do not count")

	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)
	ok, err = repo.HasPurchased(ctx, user.UserID, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindPendingBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mk := func(status enums.OrderStatus, payment enums.PaymentStatus, created time.Time) uuid.UUID {
		o := &models.Order{UserID: uuid.New(), Status: status, PaymentStatus: payment, CreatedAt: created}
		require.NoError(t, conn.Create(o).Error)
		return o.ID
	}
	oldest := mk(enums.OrderStatusPending, enums.PaymentStatusUnpaid, base)
	older := mk(enums.OrderStatusPending, enums.PaymentStatusUnpaid, base.Add(time.Hour))
	mk(enums.OrderStatusPending, enums.PaymentStatusUnpaid, base.Add(48*time.Hour))
	mk(enums.OrderStatusPaid, enums.PaymentStatusPaid, base)

	rows, err := repo.FindPendingBefore(ctx, base.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, oldest, rows[0].ID)
	assert.Equal(t, older, rows[1].ID)

	rows, err = repo.FindPendingBefore(ctx, base.Add(24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCancelRefusedAfterStockApplied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	admin := adminPrincipal()
	p := f.seedProduct(t, "Lamp", 100, 4)

	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 2)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStockAfterOrder(ctx, user, order.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, admin, order.ID, "cancelled")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	got, err := f.svc.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, got.Status)
	assert.Equal(t, 2, f.stockOf(t, p.ID))
	assert.Empty(t, f.events.Named(events.OrderStatusChanged))
}

func TestCancelPaidOrderBeforeStockApplied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := buyer()
	p := f.seedProduct(t, "Rug", 100, 4)

	_, err := f.carts.AddItem(ctx, user.UserID, p.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Create(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	_, err = f.svc.SimulatePayment(ctx, user, order.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.UpdateStatus(ctx, adminPrincipal(), order.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 4, f.stockOf(t, p.ID))
}
