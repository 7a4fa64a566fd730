package coupons

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, c *models.Coupon) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Coupon{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

// FindByCodeForUpdate loads a live coupon, row-locked on postgres for the rest of the transaction.
func (r *Repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Coupon, error) {
	q := r.db.WithContext(ctx).Where("code = ?", code)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c models.Coupon
	if err := q.First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) List(ctx context.Context, page pagination.Page) ([]models.Coupon, int64, error) {
	page = page.Normalize()
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Coupon{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Coupon
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *Repository) Update(ctx context.Context, c *models.Coupon) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Coupon{}, "id = ?", id).Error
}

// IncrementUsage bumps used_count while the coupon still has uses left.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
