package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*CartDTO, error)
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
}

type ServiceParams struct {
	Repo     CartRepository
	TxRunner txRunner
	// Products binds a product reader to the running transaction.
	Products func(tx *gorm.DB) ProductReader
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products func(tx *gorm.DB) ProductReader
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &service{repo: params.Repo, tx: params.TxRunner, products: params.Products}, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*CartDTO, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		cart, err := repo.GetOrCreate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		idx := findLine(cart.Items, productID)
		if idx < 0 {
			cart.Items = append(cart.Items, models.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Position:  nextPosition(cart.Items),
			})
			idx = len(cart.Items) - 1
		}
		line := &cart.Items[idx]
		merged := line.Quantity + qty
		if merged > product.Stock {
			return insufficientStock(product, merged)
		}
		line.Quantity = merged
		line.UnitPriceCents = product.PriceCents
		if err := repo.SaveItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}
		return s.persistTotal(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return EmptyCart(userID), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return FromModel(cart), nil
}

func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*CartDTO, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.loadCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		idx := findLine(cart.Items, productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
		}
		product, err := s.loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if qty > product.Stock {
			return insufficientStock(product, qty)
		}
		line := &cart.Items[idx]
		line.Quantity = qty
		line.UnitPriceCents = product.PriceCents
		if err := repo.SaveItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}
		return s.persistTotal(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.loadCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		idx := findLine(cart.Items, productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
		}
		if _, err := repo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return s.persistTotal(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.ClearItems(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		cart.Items = nil
		return s.persistTotal(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *service) loadCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// loadProduct returns the product only when it can still be bought.
func (s *service) loadProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	product, err := s.products(tx).FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) persistTotal(ctx context.Context, repo CartRepository, cart *models.Cart) error {
	cart.TotalCents = Total(cart.Items)
	if err := repo.UpdateTotal(ctx, cart.ID, cart.TotalCents); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart total")
	}
	return nil
}

func findLine(items []models.CartItem, productID uuid.UUID) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func nextPosition(items []models.CartItem) int {
	next := 0
	for _, item := range items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}

func insufficientStock(p *models.Product, requested int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %q", p.Title).
		WithDetails(map[string]any{
			"product_id": p.ID,
			"available":  p.Stock,
			"requested":  requested,
		})
}
