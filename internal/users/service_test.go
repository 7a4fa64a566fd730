package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "hashed:" + pw, nil }

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(ServiceParams{Repo: repo, Hasher: plainHasher{}})
	require.NoError(t, err)
	return svc, repo
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{Hasher: plainHasher{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Repo: &Repository{}})
	assert.Error(t, err)
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{FullName: " Ada Lovelace ", Email: "Ada@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "Ada Lovelace", created.FullName)
	assert.Equal(t, enums.UserRoleUser, created.Role)
	assert.True(t, created.IsActive)

	stored, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hashed:password1", stored.PasswordHash)

	_, err = svc.Create(ctx, CreateUserRequest{FullName: "Other", Email: "ada@example.com", Password: "password2"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestPromoteAndDemote(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateUserRequest{FullName: "Sam", Email: "sam@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Demote(ctx, u.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	promoted, err := svc.Promote(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleSeller, promoted.Role)

	_, err = svc.Promote(ctx, u.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	demoted, err := svc.Demote(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleUser, demoted.Role)

	reloaded, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleUser, reloaded.Role)
}

func TestRoleChangesOnAdminAreStateConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Create(ctx, CreateUserRequest{FullName: "Root", Email: "root@example.com", Password: "password1", Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = svc.Promote(ctx, admin.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = svc.Demote(ctx, admin.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeactivateKeepsRow(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateUserRequest{FullName: "Gone", Email: "gone@example.com", Password: "password1"})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, u.ID))

	stored, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	err = svc.Deactivate(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		_, err := svc.Create(ctx, CreateUserRequest{FullName: "N", Email: email, Password: "password1"})
		require.NoError(t, err)
	}

	rows, meta, err := svc.List(ctx, pagination.Page{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, pagination.Meta{Total: 3, Page: 2, Limit: 2, TotalPages: 2}, meta)
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
