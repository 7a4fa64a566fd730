package categories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type Service interface {
	Create(ctx context.Context, req CreateCategoryRequest) (*CategoryDTO, error)
	List(ctx context.Context) ([]CategoryDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCategoryRequest) (*CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository interface {
	Create(ctx context.Context, c *models.Category) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	List(ctx context.Context) ([]models.Category, error)
	Update(ctx context.Context, c *models.Category) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, req CreateCategoryRequest) (*CategoryDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := s.ensureNameFree(ctx, name, nil); err != nil {
		return nil, err
	}
	c := &models.Category{Name: name, Description: strings.TrimSpace(req.Description)}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, mapWriteError(err, "create category")
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) List(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateCategoryRequest) (*CategoryDTO, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		if !strings.EqualFold(name, c.Name) {
			if err := s.ensureNameFree(ctx, name, &c.ID); err != nil {
				return nil, err
			}
		}
		c.Name = name
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "update category")
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
	}
	return nil
}

func (s *service) ensureNameFree(ctx context.Context, name string, excludeID *uuid.UUID) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check category name")
	}
	if exists {
		return pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return c, nil
}

func mapWriteError(err error, op string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
