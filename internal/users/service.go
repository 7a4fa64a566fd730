package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Service is the admin user directory plus the self-service profile lookup.
type Service interface {
	List(ctx context.Context, page pagination.Page) ([]UserDTO, pagination.Meta, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	Create(ctx context.Context, req CreateUserRequest) (*UserDTO, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Promote(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	Demote(ctx context.Context, id uuid.UUID) (*UserDTO, error)
}

type repository interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, page pagination.Page) ([]models.User, int64, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

type ServiceParams struct {
	Repo   repository
	Hasher passwordHasher
}

type service struct {
	repo   repository
	hasher passwordHasher
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Hasher == nil {
		return nil, fmt.Errorf("password hasher required")
	}
	return &service{repo: params.Repo, hasher: params.Hasher}, nil
}

func (s *service) List(ctx context.Context, page pagination.Page) ([]UserDTO, pagination.Meta, error) {
	rows, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	return FromModels(rows), pagination.NewMeta(page, total), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Create(ctx context.Context, req CreateUserRequest) (*UserDTO, error) {
	role := req.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	user, err := s.repo.Create(ctx, CreateUserDTO{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return FromModel(user), nil
}

// Deactivate disables login for the account. Users are never hard-deleted.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate user")
	}
	return nil
}

func (s *service) Promote(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case enums.UserRoleAdmin:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "admins cannot be promoted")
	case enums.UserRoleSeller:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user is already a seller")
	}
	return s.setRole(ctx, user, enums.UserRoleSeller)
}

func (s *service) Demote(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case enums.UserRoleAdmin:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "admins cannot be demoted")
	case enums.UserRoleUser:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user is not a seller")
	}
	return s.setRole(ctx, user, enums.UserRoleUser)
}

func (s *service) setRole(ctx context.Context, user *models.User, role enums.UserRole) (*UserDTO, error) {
	if err := s.repo.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
	}
	user.Role = role
	return FromModel(user), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
