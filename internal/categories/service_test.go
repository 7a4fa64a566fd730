package categories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	return svc
}

func strPtr(s string) *string { return &s }

func TestCreateAndConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCategoryRequest{Name: " Audio ", Description: "Speakers"})
	require.NoError(t, err)
	assert.Equal(t, "Audio", c.Name)

	_, err = svc.Create(ctx, CreateCategoryRequest{Name: "audio"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestDeletedCategoriesAreHiddenAndNameReusable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCategoryRequest{Name: "Books"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, c.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Create(ctx, CreateCategoryRequest{Name: "Books"})
	assert.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateCategoryRequest{Name: "Games"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateCategoryRequest{Name: "Toys"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, UpdateCategoryRequest{Name: strPtr("toys")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	updated, err := svc.Update(ctx, a.ID, UpdateCategoryRequest{Name: strPtr("GAMES"), Description: strPtr("Board and video")})
	require.NoError(t, err)
	assert.Equal(t, "GAMES", updated.Name)
	assert.Equal(t, "Board and video", updated.Description)

	_, err = svc.Update(ctx, uuid.New(), UpdateCategoryRequest{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListSortedByName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, n := range []string{"Zeta", "Alpha", "Mid"} {
		_, err := svc.Create(ctx, CreateCategoryRequest{Name: n})
		require.NoError(t, err)
	}
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, []string{list[0].Name, list[1].Name, list[2].Name})
}
