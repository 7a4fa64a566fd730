package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindByID loads a live product with its categories. Soft-deleted rows are not found.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).
		Preload("Categories").
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByIDs returns live products among ids, in no particular order.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *Repository) ExistsByTitle(ctx context.Context, title string, excludeID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{}).Where("LOWER(title) = LOWER(?)", title)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

// Update writes scalar columns only; categories go through ReplaceCategories.
func (r *Repository) Update(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error
}

func (r *Repository) ReplaceCategories(ctx context.Context, p *models.Product, cats []models.Category) error {
	return r.db.WithContext(ctx).Model(p).Association("Categories").Replace(cats)
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id).Error
}

// DecrementStock subtracts qty only when enough stock remains. It reports
// false when the guard rejected the update, which callers treat as insufficient stock.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateRating stores the aggregate computed from live reviews.
func (r *Repository) UpdateRating(ctx context.Context, id uuid.UUID, count int, avg float64) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"review_count": count, "rating_avg": avg}).Error
}

// List applies q to active, live products and returns one page plus the total match count.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Product, int64, error) {
	var total int64
	if err := r.filtered(ctx, q).Model(&models.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := "DESC"
	if q.Order == enums.SortOrderAsc {
		dir = "ASC"
	}
	var rows []models.Product
	err := r.filtered(ctx, q).
		Preload("Categories").
		Order(q.Sort.Column() + " " + dir).
		Order("id " + dir).
		Limit(q.Page.Limit).
		Offset(q.Page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// likeEscaper makes LIKE wildcards in search input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repository) filtered(ctx context.Context, q ListQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Where("is_active = ?", true)
	if q.Q != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q.Q)) + "%"
		tx = tx.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, like, like)
	}
	if q.CategoryID != nil {
		tx = tx.Where("id IN (?)",
			r.db.WithContext(ctx).Table("product_categories").
				Select("product_id").
				Where("category_id = ?", *q.CategoryID))
	}
	if q.SellerID != nil {
		tx = tx.Where("seller_id = ?", *q.SellerID)
	}
	if q.MinPriceCents != nil {
		tx = tx.Where("price_cents >= ?", *q.MinPriceCents)
	}
	if q.MaxPriceCents != nil {
		tx = tx.Where("price_cents <= ?", *q.MaxPriceCents)
	}
	return tx
}
