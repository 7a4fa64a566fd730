package reviews

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *Repository) ExistsForUser(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) ListByProduct(ctx context.Context, productID uuid.UUID, page pagination.Page) ([]models.Review, int64, error) {
	page = page.Normalize()
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("product_id = ?", productID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Review
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *Repository) Update(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Review{}, "id = ?", id).Error
}

// RatingStats returns the live review count and average rating of a product.
func (r *Repository) RatingStats(ctx context.Context, productID uuid.UUID) (int, float64, error) {
	var stats struct {
		Count int64
		Avg   *float64
	}
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Select("COUNT(*) AS count, AVG(rating) AS avg").
		Where("product_id = ?", productID).
		Scan(&stats).Error
	if err != nil {
		return 0, 0, err
	}
	avg := 0.0
	if stats.Avg != nil {
		avg = *stats.Avg
	}
	return int(stats.Count), avg, nil
}
