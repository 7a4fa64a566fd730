package product

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

type CategorySummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ProductDTO is the public catalog representation.
type ProductDTO struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       money.Amount      `json:"price"`
	Stock       int               `json:"stock"`
	Images      []string          `json:"images"`
	SellerID    uuid.UUID         `json:"seller_id"`
	IsActive    bool              `json:"is_active"`
	ReviewCount int               `json:"review_count"`
	RatingAvg   float64           `json:"rating_avg"`
	Categories  []CategorySummary `json:"categories"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type CreateProductRequest struct {
	Title       string      `json:"title" validate:"required,min=2,max=200"`
	Description string      `json:"description" validate:"max=5000"`
	PriceCents  int64       `json:"price_cents" validate:"gte=0"`
	Stock       int         `json:"stock" validate:"gte=0"`
	CategoryIDs []uuid.UUID `json:"category_ids"`
	IsActive    *bool       `json:"is_active"`
}

type UpdateProductRequest struct {
	Title       *string      `json:"title" validate:"omitempty,min=2,max=200"`
	Description *string      `json:"description" validate:"omitempty,max=5000"`
	PriceCents  *int64       `json:"price_cents" validate:"omitempty,gte=0"`
	Stock       *int         `json:"stock" validate:"omitempty,gte=0"`
	CategoryIDs *[]uuid.UUID `json:"category_ids"`
}

// ImageUpload is one file from a multipart product form.
type ImageUpload struct {
	ContentType string
	Body        io.Reader
}

// ListResult is what the browse endpoint returns and what the list cache stores.
type ListResult struct {
	Items []ProductDTO `json:"items"`
	Total int64        `json:"total"`
}

func FromModel(p *models.Product) ProductDTO {
	images := []string(p.Images)
	if images == nil {
		images = []string{}
	}
	cats := make([]CategorySummary, 0, len(p.Categories))
	for _, c := range p.Categories {
		cats = append(cats, CategorySummary{ID: c.ID, Name: c.Name})
	}
	return ProductDTO{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       money.NewAmount(p.PriceCents),
		Stock:       p.Stock,
		Images:      images,
		SellerID:    p.SellerID,
		IsActive:    p.IsActive,
		ReviewCount: p.ReviewCount,
		RatingAvg:   p.RatingAvg,
		Categories:  cats,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func FromModels(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}
