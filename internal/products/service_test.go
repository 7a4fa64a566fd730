package product

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/categories"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/storage/local"
)

type memoryCache struct {
	values map[string]string
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string]string{}} }

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	return nil
}

func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memoryCache) CacheKey(parts ...string) string {
	return "test:cache:" + strings.Join(parts, ":")
}

type fixture struct {
	svc    Service
	conn   *gorm.DB
	events *events.Recorder
	store  *local.Store
	cache  *memoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	store, err := local.New(t.TempDir(), "/uploads")
	require.NoError(t, err)
	rec := events.NewRecorder()
	mem := newMemoryCache()

	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		Categories:   categories.NewRepository(conn),
		TxRunner:     db.FromConn(conn),
		Store:        store,
		ImageBaseURL: "/uploads",
		MaxImages:    2,
		Cache:        NewRedisListCache(mem, time.Minute, nil),
		Events:       rec,
		Outbox:       outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, events: rec, store: store, cache: mem}
}

func seller() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.UserRoleSeller}
}

func admin() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}
}

func (f *fixture) mustCreate(t *testing.T, p auth.Principal, title string, price int64) *ProductDTO {
	t.Helper()
	out, err := f.svc.Create(context.Background(), p, CreateProductRequest{Title: title, PriceCents: price, Stock: 10}, nil)
	require.NoError(t, err)
	return out
}

func TestCreateRequiresSellerRole(t *testing.T) {
	f := newFixture(t)
	buyer := auth.Principal{UserID: uuid.New(), Role: enums.UserRoleUser}

	_, err := f.svc.Create(context.Background(), buyer, CreateProductRequest{Title: "Lamp"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Create(context.Background(), auth.Anonymous(), CreateProductRequest{Title: "Lamp"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCreatePublishesAndQueuesOutbox(t *testing.T) {
	f := newFixture(t)
	s := seller()

	p := f.mustCreate(t, s, "Desk Lamp", 2599)
	assert.Equal(t, s.UserID, p.SellerID)
	assert.Equal(t, "25.99", p.Price.Display)
	assert.True(t, p.IsActive)

	published := f.events.Named(events.NewProduct)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.ProductPayload)
	assert.Equal(t, p.ID, payload.ProductID)

	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventProductCreated, rows[0].EventType)
	assert.Equal(t, p.ID, rows[0].AggregateID)
}

func TestCreateTitleConflictAndMissingCategory(t *testing.T) {
	f := newFixture(t)
	s := seller()
	f.mustCreate(t, s, "Chair", 1000)

	_, err := f.svc.Create(context.Background(), s, CreateProductRequest{Title: "chair"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Create(context.Background(), s, CreateProductRequest{Title: "Table", CategoryIDs: []uuid.UUID{uuid.New()}}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateWithCategoriesAndImages(t *testing.T) {
	f := newFixture(t)
	cat := models.Category{Name: "Home"}
	require.NoError(t, f.conn.Create(&cat).Error)

	images := []ImageUpload{
		{ContentType: "image/png", Body: strings.NewReader("png-bytes")},
		{ContentType: "image/jpeg", Body: strings.NewReader("jpg-bytes")},
	}
	p, err := f.svc.Create(context.Background(), seller(), CreateProductRequest{
		Title:       "Rug",
		PriceCents:  5000,
		CategoryIDs: []uuid.UUID{cat.ID, cat.ID},
	}, images)
	require.NoError(t, err)
	require.Len(t, p.Categories, 1)
	assert.Equal(t, "Home", p.Categories[0].Name)
	require.Len(t, p.Images, 2)
	assert.True(t, strings.HasPrefix(p.Images[0], "/uploads/products/"+p.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(p.Images[1], ".jpg"))

	_, err = f.svc.Create(context.Background(), seller(), CreateProductRequest{Title: "Doc"}, []ImageUpload{
		{ContentType: "application/pdf", Body: strings.NewReader("pdf")},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	tooMany := []ImageUpload{{ContentType: "image/png"}, {ContentType: "image/png"}, {ContentType: "image/png"}}
	_, err = f.svc.Create(context.Background(), seller(), CreateProductRequest{Title: "Many"}, tooMany)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateOwnershipAndPartialFields(t *testing.T) {
	f := newFixture(t)
	owner := seller()
	p := f.mustCreate(t, owner, "Mug", 800)
	ctx := context.Background()

	title := "Big Mug"
	_, err := f.svc.Update(ctx, seller(), p.ID, UpdateProductRequest{Title: &title}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	price := int64(950)
	updated, err := f.svc.Update(ctx, owner, p.ID, UpdateProductRequest{Title: &title, PriceCents: &price}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Big Mug", updated.Title)
	assert.Equal(t, int64(950), updated.Price.Cents)
	assert.Equal(t, 10, updated.Stock)

	cat := models.Category{Name: "Kitchen"}
	require.NoError(t, f.conn.Create(&cat).Error)
	ids := []uuid.UUID{cat.ID}
	updated, err = f.svc.Update(ctx, admin(), p.ID, UpdateProductRequest{CategoryIDs: &ids}, nil)
	require.NoError(t, err)
	require.Len(t, updated.Categories, 1)

	reloaded, err := f.svc.Get(ctx, auth.Anonymous(), p.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Categories, 1)
	assert.Equal(t, cat.ID, reloaded.Categories[0].ID)
}

func TestSetActiveVisibilityAndEvents(t *testing.T) {
	f := newFixture(t)
	owner := seller()
	p := f.mustCreate(t, owner, "Vase", 1500)
	ctx := context.Background()

	_, err := f.svc.SetActive(ctx, admin(), p.ID, false)
	require.NoError(t, err)
	assert.Len(t, f.events.Named(events.ProductRejected), 1)

	_, err = f.svc.Get(ctx, auth.Anonymous(), p.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	got, err := f.svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = f.svc.SetActive(ctx, owner, p.ID, true)
	require.NoError(t, err)
	assert.Empty(t, f.events.Named(events.ProductApproved))

	_, err = f.svc.SetActive(ctx, admin(), p.ID, true)
	require.NoError(t, err)
	assert.Len(t, f.events.Named(events.ProductApproved), 1)
}

func TestDeleteHidesProduct(t *testing.T) {
	f := newFixture(t)
	owner := seller()
	p := f.mustCreate(t, owner, "Pillow", 1200)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, owner, p.ID))
	_, err := f.svc.Get(ctx, owner, p.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	items, meta, err := f.svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(0), meta.Total)

	// the title becomes available again once the old product is gone
	f.mustCreate(t, owner, "Pillow", 1300)
}

func TestListFiltersSortingAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1, s2 := seller(), seller()
	cat := models.Category{Name: "Garden"}
	require.NoError(t, f.conn.Create(&cat).Error)

	f.mustCreate(t, s1, "Red Shovel", 3000)
	f.mustCreate(t, s1, "Blue Rake", 1000)
	f.mustCreate(t, s2, "Green Hose", 2000)
	_, err := f.svc.Create(ctx, s2, CreateProductRequest{Title: "Garden Gnome", PriceCents: 4000, CategoryIDs: []uuid.UUID{cat.ID}}, nil)
	require.NoError(t, err)

	items, meta, err := f.svc.List(ctx, ListQuery{Sort: enums.ProductSortPrice, Order: enums.SortOrderAsc})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "Blue Rake", items[0].Title)
	assert.Equal(t, int64(4), meta.Total)

	items, _, err = f.svc.List(ctx, ListQuery{SellerID: &s1.UserID})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, _, err = f.svc.List(ctx, ListQuery{Q: "HOSE"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Green Hose", items[0].Title)

	items, _, err = f.svc.List(ctx, ListQuery{CategoryID: &cat.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Garden Gnome", items[0].Title)

	minPrice, maxPrice := int64(1500), int64(3000)
	items, _, err = f.svc.List(ctx, ListQuery{MinPriceCents: &minPrice, MaxPriceCents: &maxPrice})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, meta, err = f.svc.List(ctx, ListQuery{Page: pagination.Page{Page: 2, Limit: 3}, Sort: enums.ProductSortPrice})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Blue Rake", items[0].Title)
	assert.Equal(t, 2, meta.TotalPages)

	_, _, err = f.svc.List(ctx, ListQuery{MinPriceCents: &maxPrice, MaxPriceCents: &minPrice})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListIsCachedUntilMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := seller()
	f.mustCreate(t, owner, "Book", 500)

	items, _, err := f.svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	// rows written behind the service's back are invisible until a mutation invalidates
	require.NoError(t, f.conn.Create(&models.Product{SellerID: owner.UserID, Title: "Ghost", IsActive: true}).Error)
	items, _, err = f.svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	f.mustCreate(t, owner, "Notebook", 300)
	items, _, err = f.svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestDecrementStockGuard(t *testing.T) {
	f := newFixture(t)
	p := f.mustCreate(t, seller(), "Candle", 400)
	repo := NewRepository(f.conn)
	ctx := context.Background()

	ok, err := repo.DecrementStock(ctx, p.ID, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementStock(ctx, p.ID, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestListSearchTreatsWildcardsLiterally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := seller()
	f.mustCreate(t, s, "100% Cotton Tee", 2500)
	f.mustCreate(t, s, "Plain Tee", 1500)
	f.mustCreate(t, s, `Back\Slash Mug`, 900)

	items, _, err := f.svc.List(ctx, ListQuery{Q: "%"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "100% Cotton Tee", items[0].Title)

	items, _, err = f.svc.List(ctx, ListQuery{Q: "_"})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = f.svc.List(ctx, ListQuery{Q: `k\s`})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, `Back\Slash Mug`, items[0].Title)
}
