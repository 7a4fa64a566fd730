package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/marketplace-backend/pkg/db/types"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/storage"
)

const defaultMaxImages = 8

type Service interface {
	Create(ctx context.Context, principal auth.Principal, req CreateProductRequest, images []ImageUpload) (*ProductDTO, error)
	Update(ctx context.Context, principal auth.Principal, id uuid.UUID, req UpdateProductRequest, images []ImageUpload) (*ProductDTO, error)
	Delete(ctx context.Context, principal auth.Principal, id uuid.UUID) error
	SetActive(ctx context.Context, principal auth.Principal, id uuid.UUID, active bool) (*ProductDTO, error)
	Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, q ListQuery) ([]ProductDTO, pagination.Meta, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type categoryLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Category, error)
}

type ServiceParams struct {
	Repo       *Repository
	Categories categoryLookup
	TxRunner   txRunner
	Store      storage.ObjectStore
	// ImageBaseURL is the public prefix Store returns, used to map stored URLs back to keys.
	ImageBaseURL string
	MaxImages    int
	Cache        ListCache
	Events       events.Publisher
	Outbox       outbox.Emitter
	Logger       *logger.Logger
}

type service struct {
	repo         *Repository
	categories   categoryLookup
	tx           txRunner
	store        storage.ObjectStore
	imageBaseURL string
	maxImages    int
	cache        ListCache
	events       events.Publisher
	outbox       outbox.Emitter
	logg         *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Categories == nil {
		return nil, fmt.Errorf("category lookup required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &service{
		repo:         params.Repo,
		categories:   params.Categories,
		tx:           params.TxRunner,
		store:        params.Store,
		imageBaseURL: params.ImageBaseURL,
		maxImages:    params.MaxImages,
		cache:        params.Cache,
		events:       params.Events,
		outbox:       params.Outbox,
		logg:         params.Logger,
	}
	if s.maxImages <= 0 {
		s.maxImages = defaultMaxImages
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, principal auth.Principal, req CreateProductRequest, images []ImageUpload) (*ProductDTO, error) {
	if !principal.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers can create products")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if req.PriceCents < 0 || req.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and stock must not be negative")
	}
	if err := s.ensureTitleFree(ctx, title, nil); err != nil {
		return nil, err
	}
	cats, err := s.resolveCategories(ctx, req.CategoryIDs)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:          uuid.New(),
		SellerID:    principal.UserID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		IsActive:    true,
		Categories:  cats,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	urls, err := s.uploadImages(ctx, p.ID, images)
	if err != nil {
		return nil, err
	}
	p.Images = dbtypes.StringList(urls)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductCreated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   p.ID,
			Actor:         &outbox.Actor{UserID: principal.UserID, Role: string(principal.Role)},
			Data: outbox.ProductCreated{
				ProductID:  p.ID,
				SellerID:   p.SellerID,
				Title:      p.Title,
				PriceCents: p.PriceCents,
				Stock:      p.Stock,
			},
		})
	})
	if err != nil {
		s.discardImages(ctx, urls)
		return nil, mapWriteError(err, "create product")
	}

	s.cache.Invalidate(ctx)
	s.events.Publish(ctx, events.New(events.NewProduct, events.ProductPayload{
		ProductID: p.ID,
		SellerID:  p.SellerID,
		Title:     p.Title,
		ActorID:   principal.UserID,
	}))

	dto := FromModel(p)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, principal auth.Principal, id uuid.UUID, req UpdateProductRequest, images []ImageUpload) (*ProductDTO, error) {
	p, err := s.loadOwned(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		if !strings.EqualFold(title, p.Title) {
			if err := s.ensureTitleFree(ctx, title, &p.ID); err != nil {
				return nil, err
			}
		}
		p.Title = title
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		p.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
		}
		p.Stock = *req.Stock
	}

	var cats []models.Category
	if req.CategoryIDs != nil {
		cats, err = s.resolveCategories(ctx, *req.CategoryIDs)
		if err != nil {
			return nil, err
		}
	}

	var oldImages, newImages []string
	if len(images) > 0 {
		newImages, err = s.uploadImages(ctx, p.ID, images)
		if err != nil {
			return nil, err
		}
		oldImages = append(oldImages, p.Images...)
		p.Images = dbtypes.StringList(newImages)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		if req.CategoryIDs != nil {
			if err := repo.ReplaceCategories(ctx, p, cats); err != nil {
				return err
			}
			p.Categories = cats
		}
		return nil
	})
	if err != nil {
		s.discardImages(ctx, newImages)
		return nil, mapWriteError(err, "update product")
	}
	s.discardImages(ctx, oldImages)
	s.cache.Invalidate(ctx)

	dto := FromModel(p)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
	if _, err := s.loadOwned(ctx, principal, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	s.cache.Invalidate(ctx)
	return nil
}

func (s *service) SetActive(ctx context.Context, principal auth.Principal, id uuid.UUID, active bool) (*ProductDTO, error) {
	p, err := s.loadOwned(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
	}
	p.IsActive = active
	s.cache.Invalidate(ctx)

	if principal.IsAdmin() {
		name := events.ProductRejected
		if active {
			name = events.ProductApproved
		}
		s.events.Publish(ctx, events.New(name, events.ProductPayload{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Title:     p.Title,
			ActorID:   principal.UserID,
		}))
	}

	dto := FromModel(p)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*ProductDTO, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive && !principal.Owns(p.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	dto := FromModel(p)
	return &dto, nil
}

func (s *service) List(ctx context.Context, q ListQuery) ([]ProductDTO, pagination.Meta, error) {
	q = q.normalize()
	if q.MinPriceCents != nil && q.MaxPriceCents != nil && *q.MinPriceCents > *q.MaxPriceCents {
		return nil, pagination.Meta{}, pkgerrors.New(pkgerrors.CodeValidation, "minPrice must not exceed maxPrice")
	}

	if cached, ok := s.cache.Get(ctx, q); ok {
		return cached.Items, pagination.NewMeta(q.Page, cached.Total), nil
	}

	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	result := &ListResult{Items: FromModels(rows), Total: total}
	s.cache.Set(ctx, q, result)
	return result.Items, pagination.NewMeta(q.Page, total), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return p, nil
}

func (s *service) loadOwned(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Product, error) {
	if principal.IsAnonymous() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.Owns(p.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you do not own this product")
	}
	return p, nil
}

func (s *service) ensureTitleFree(ctx context.Context, title string, excludeID *uuid.UUID) error {
	exists, err := s.repo.ExistsByTitle(ctx, title, excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product title")
	}
	if exists {
		return pkgerrors.New(pkgerrors.CodeConflict, "a product with this title already exists")
	}
	return nil
}

func (s *service) resolveCategories(ctx context.Context, ids []uuid.UUID) ([]models.Category, error) {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return []models.Category{}, nil
	}
	cats, err := s.categories.FindByIDs(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load categories")
	}
	if len(cats) != len(unique) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more categories not found")
	}
	return cats, nil
}

func (s *service) uploadImages(ctx context.Context, productID uuid.UUID, images []ImageUpload) ([]string, error) {
	if len(images) == 0 {
		return []string{}, nil
	}
	if s.store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "image storage is not configured")
	}
	if len(images) > s.maxImages {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d images are allowed", s.maxImages)
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		key, err := storage.ImageKey("products/"+productID.String(), img.ContentType)
		if err != nil {
			s.discardImages(ctx, urls)
			if errors.Is(err, storage.ErrUnsupportedType) {
				return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported image type %q", img.ContentType)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build image key")
		}
		url, err := s.store.Put(ctx, key, img.ContentType, img.Body)
		if err != nil {
			s.discardImages(ctx, urls)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store product image")
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// discardImages removes stored images best effort; failures are only logged.
func (s *service) discardImages(ctx context.Context, urls []string) {
	if s.store == nil {
		return
	}
	for _, url := range urls {
		key, ok := storage.KeyFromURL(s.imageBaseURL, url)
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "failed to delete product image")
		}
	}
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func mapWriteError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "a product with this title already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
