package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestApply(t *testing.T) {
	cases := []struct {
		name     string
		coupon   models.Coupon
		subtotal int64
		want     int64
	}{
		{"percent floors", models.Coupon{DiscountType: enums.DiscountTypePercent, DiscountValue: 15}, 999, 149},
		{"percent full", models.Coupon{DiscountType: enums.DiscountTypePercent, DiscountValue: 100}, 500, 500},
		{"fixed", models.Coupon{DiscountType: enums.DiscountTypeFixed, DiscountValue: 300}, 1000, 300},
		{"fixed capped at subtotal", models.Coupon{DiscountType: enums.DiscountTypeFixed, DiscountValue: 3000}, 1000, 1000},
		{"zero subtotal", models.Coupon{DiscountType: enums.DiscountTypeFixed, DiscountValue: 300}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Apply(&tc.coupon, tc.subtotal))
		})
	}
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCouponRequest{Code: " save10 ", DiscountType: enums.DiscountTypePercent, DiscountValue: 10})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.True(t, c.IsActive)

	_, err = svc.Create(ctx, CreateCouponRequest{Code: "SAVE10", DiscountType: enums.DiscountTypeFixed, DiscountValue: 100})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Create(ctx, CreateCouponRequest{Code: "HUGE", DiscountType: enums.DiscountTypePercent, DiscountValue: 150})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateListDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCouponRequest{Code: "FIVE", DiscountType: enums.DiscountTypeFixed, DiscountValue: 500})
	require.NoError(t, err)

	inactive := false
	value := int64(700)
	updated, err := svc.Update(ctx, c.ID, UpdateCouponRequest{IsActive: &inactive, DiscountValue: &value})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, int64(700), updated.DiscountValue)

	list, meta, err := svc.List(ctx, pagination.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int64(1), meta.Total)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveValidations(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	inactive := false

	mk := func(req CreateCouponRequest) {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}
	mk(CreateCouponRequest{Code: "GOOD", DiscountType: enums.DiscountTypePercent, DiscountValue: 10, MinOrderCents: 1000})
	mk(CreateCouponRequest{Code: "OFF", DiscountType: enums.DiscountTypeFixed, DiscountValue: 100, IsActive: &inactive})
	mk(CreateCouponRequest{Code: "OLD", DiscountType: enums.DiscountTypeFixed, DiscountValue: 100, StartsAt: &past, ExpiresAt: &now})
	mk(CreateCouponRequest{Code: "SOON", DiscountType: enums.DiscountTypeFixed, DiscountValue: 100, StartsAt: &future})
	mk(CreateCouponRequest{Code: "ONCE", DiscountType: enums.DiscountTypeFixed, DiscountValue: 100, MaxUses: 1})

	r, err := svc.Resolve(ctx, conn, "good", 2000, now)
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.DiscountCents)
	assert.Equal(t, "GOOD", r.Code)

	for _, tc := range []struct {
		code     string
		subtotal int64
	}{
		{"GOOD", 999},
		{"OFF", 5000},
		{"OLD", 5000},
		{"SOON", 5000},
		{"MISSING", 5000},
	} {
		_, err := svc.Resolve(ctx, conn, tc.code, tc.subtotal, now)
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "code %s", tc.code)
	}

	once, err := svc.Resolve(ctx, conn, "ONCE", 5000, now)
	require.NoError(t, err)
	require.NoError(t, svc.Redeem(ctx, conn, once.CouponID))
	_, err = svc.Resolve(ctx, conn, "ONCE", 5000, now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = svc.Redeem(ctx, conn, once.CouponID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
