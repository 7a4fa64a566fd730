package reviews

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type Service interface {
	Create(ctx context.Context, principal auth.Principal, productID uuid.UUID, req CreateReviewRequest) (*ReviewDTO, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, page pagination.Page) ([]ReviewDTO, pagination.Meta, error)
	Get(ctx context.Context, productID, reviewID uuid.UUID) (*ReviewDTO, error)
	Update(ctx context.Context, principal auth.Principal, productID, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error)
	Delete(ctx context.Context, principal auth.Principal, productID, reviewID uuid.UUID) error
	AdminUpdate(ctx context.Context, principal auth.Principal, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error)
	AdminDelete(ctx context.Context, principal auth.Principal, reviewID uuid.UUID) error
}

// PurchaseChecker proves a user bought a product.
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo      *Repository
	Products  *product.Repository
	Purchases PurchaseChecker
	TxRunner  txRunner
	Events    events.Publisher
	// ProductCache is invalidated when ratings move; optional.
	ProductCache interface{ Invalidate(ctx context.Context) }
}

type service struct {
	repo      *Repository
	products  *product.Repository
	purchases PurchaseChecker
	tx        txRunner
	events    events.Publisher
	cache     interface{ Invalidate(ctx context.Context) }
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("review repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case params.Purchases == nil:
		return nil, fmt.Errorf("purchase checker required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("event publisher required")
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		purchases: params.Purchases,
		tx:        params.TxRunner,
		events:    params.Events,
		cache:     params.ProductCache,
	}, nil
}

func (s *service) Create(ctx context.Context, principal auth.Principal, productID uuid.UUID, req CreateReviewRequest) (*ReviewDTO, error) {
	if principal.IsAnonymous() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	p, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	bought, err := s.purchases.HasPurchased(ctx, principal.UserID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check purchase")
	}
	if !bought {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you can only review products you have purchased")
	}
	exists, err := s.repo.ExistsForUser(ctx, principal.UserID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing review")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you have already reviewed this product")
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    principal.UserID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you have already reviewed this product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}
		return s.recompute(ctx, tx, productID)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	s.events.Publish(ctx, events.New(events.ReviewCreated, events.ReviewPayload{
		ReviewID:     review.ID,
		ProductID:    p.ID,
		ProductTitle: p.Title,
		SellerID:     p.SellerID,
		ReviewerID:   principal.UserID,
		Rating:       review.Rating,
	}))
	dto := FromModel(review)
	return &dto, nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, page pagination.Page) ([]ReviewDTO, pagination.Meta, error) {
	if _, err := s.loadProduct(ctx, productID); err != nil {
		return nil, pagination.Meta{}, err
	}
	rows, total, err := s.repo.ListByProduct(ctx, productID, page)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	out := make([]ReviewDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, pagination.NewMeta(page, total), nil
}

func (s *service) Get(ctx context.Context, productID, reviewID uuid.UUID) (*ReviewDTO, error) {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	dto := FromModel(review)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, principal auth.Principal, productID, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error) {
	review, err := s.loadOwned(ctx, principal, productID, reviewID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, review, req)
}

func (s *service) Delete(ctx context.Context, principal auth.Principal, productID, reviewID uuid.UUID) error {
	review, err := s.loadOwned(ctx, principal, productID, reviewID)
	if err != nil {
		return err
	}
	return s.remove(ctx, review)
}

func (s *service) AdminUpdate(ctx context.Context, principal auth.Principal, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, review, req)
}

func (s *service) AdminDelete(ctx context.Context, principal auth.Principal, reviewID uuid.UUID) error {
	if !principal.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return err
	}
	return s.remove(ctx, review)
}

func (s *service) apply(ctx context.Context, review *models.Review, req UpdateReviewRequest) (*ReviewDTO, error) {
	ratingChanged := false
	if req.Rating != nil {
		if *req.Rating < 1 || *req.Rating > 5 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
		}
		ratingChanged = *req.Rating != review.Rating
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		review.Comment = strings.TrimSpace(*req.Comment)
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, review); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update review")
		}
		if !ratingChanged {
			return nil
		}
		return s.recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}
	if ratingChanged {
		s.invalidate(ctx)
	}
	dto := FromModel(review)
	return &dto, nil
}

func (s *service) remove(ctx context.Context, review *models.Review) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SoftDelete(ctx, review.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete review")
		}
		return s.recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// recompute refreshes the product's review_count and rating_avg from live reviews.
func (s *service) recompute(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	count, avg, err := s.repo.WithTx(tx).RatingStats(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute rating")
	}
	avg = math.Round(avg*100) / 100
	if err := s.products.WithTx(tx).UpdateRating(ctx, productID, count, avg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product rating")
	}
	return nil
}

func (s *service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *service) loadProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return p, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	return review, nil
}

// loadOwned matches the review on (id, author, product); any mismatch is forbidden.
func (s *service) loadOwned(ctx context.Context, principal auth.Principal, productID, reviewID uuid.UUID) (*models.Review, error) {
	if principal.IsAnonymous() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != principal.UserID || review.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you can only modify your own reviews")
	}
	return review, nil
}
