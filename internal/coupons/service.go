package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Service covers admin coupon management plus redemption during checkout.
type Service interface {
	Create(ctx context.Context, req CreateCouponRequest) (*CouponDTO, error)
	List(ctx context.Context, page pagination.Page) ([]CouponDTO, pagination.Meta, error)
	Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCouponRequest) (*CouponDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Redeemer
}

// Redeemer is the checkout-facing half, run inside the order transaction.
type Redeemer interface {
	Resolve(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, now time.Time) (*Redemption, error)
	Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
}

// Redemption is a validated coupon and the discount it yields for one subtotal.
type Redemption struct {
	CouponID      uuid.UUID
	Code          string
	DiscountCents int64
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo}, nil
}

// NormalizeCode trims and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply computes the discount c gives on subtotalCents. It never exceeds the subtotal.
func Apply(c *models.Coupon, subtotalCents int64) int64 {
	if c == nil || subtotalCents <= 0 {
		return 0
	}
	var discount int64
	switch c.DiscountType {
	case enums.DiscountTypePercent:
		discount = money.Percent(subtotalCents, c.DiscountValue)
	case enums.DiscountTypeFixed:
		discount = c.DiscountValue
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotalCents {
		return subtotalCents
	}
	return discount
}

func (s *service) Create(ctx context.Context, req CreateCouponRequest) (*CouponDTO, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	c := &models.Coupon{
		Code:          code,
		Description:   strings.TrimSpace(req.Description),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderCents: req.MinOrderCents,
		MaxUses:       req.MaxUses,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check coupon code")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) List(ctx context.Context, page pagination.Page) ([]CouponDTO, pagination.Meta, error) {
	rows, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	out := make([]CouponDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, pagination.NewMeta(page, total), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateCouponRequest) (*CouponDTO, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if req.DiscountType != nil {
		c.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		c.DiscountValue = *req.DiscountValue
	}
	if req.MinOrderCents != nil {
		c.MinOrderCents = *req.MinOrderCents
	}
	if req.MaxUses != nil {
		c.MaxUses = *req.MaxUses
	}
	if req.StartsAt != nil {
		c.StartsAt = req.StartsAt
	}
	if req.ExpiresAt != nil {
		c.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	return nil
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, now time.Time) (*Redemption, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is empty")
	}
	c, err := s.repo.WithTx(tx).FindByCodeForUpdate(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	switch {
	case !c.IsActive:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not valid yet")
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	case c.MaxUses > 0 && c.UsedCount >= c.MaxUses:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	case subtotalCents < c.MinOrderCents:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order must be at least %s to use this coupon", money.Format(c.MinOrderCents))
	}

	return &Redemption{CouponID: c.ID, Code: c.Code, DiscountCents: Apply(c, subtotalCents)}, nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error {
	ok, err := s.repo.WithTx(tx).IncrementUsage(ctx, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem coupon")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return c, nil
}

func validate(c *models.Coupon) error {
	if !c.DiscountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_type must be percent or fixed")
	}
	if c.DiscountValue <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_value must be positive")
	}
	if c.DiscountType == enums.DiscountTypePercent && c.DiscountValue > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "percent discount cannot exceed 100")
	}
	if c.MinOrderCents < 0 || c.MaxUses < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_order_cents and max_uses must not be negative")
	}
	if c.StartsAt != nil && c.ExpiresAt != nil && !c.StartsAt.Before(*c.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "starts_at must be before expires_at")
	}
	return nil
}
