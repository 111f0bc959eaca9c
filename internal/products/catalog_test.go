package products

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/realtime"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupProductTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.Exec(`
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  image TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL,
  featured BOOLEAN NOT NULL DEFAULT false,
  "new" BOOLEAN NOT NULL DEFAULT false,
  sizes TEXT NOT NULL,
  colors TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return conn
}

type memoryFeed struct {
	mu        sync.Mutex
	published []realtime.ProductEvent
	events    chan realtime.ProductEvent
	closed    bool
	failPub   bool
}

func newMemoryFeed() *memoryFeed {
	return &memoryFeed{events: make(chan realtime.ProductEvent, 8)}
}

func (f *memoryFeed) Publish(_ context.Context, event realtime.ProductEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, event)
	return nil
}

func (f *memoryFeed) Subscribe(context.Context) (<-chan realtime.ProductEvent, func() error, error) {
	return f.events, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = true
		return nil
	}, nil
}

func (f *memoryFeed) changes() []enums.ProductChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]enums.ProductChange, 0, len(f.published))
	for _, e := range f.published {
		out = append(out, e.Type)
	}
	return out
}

func shirt(name string, featured bool) ProductInput {
	return ProductInput{
		Name:     name,
		Price:    decimal.RequireFromString("19.99"),
		Category: "Shirts",
		Featured: featured,
		Sizes:    []string{"S", "M", "L"},
	}
}

func TestCatalogCRUDPublishesChanges(t *testing.T) {
	conn := setupProductTestDB(t)
	feed := newMemoryFeed()
	catalog, err := NewCatalog(NewRepository(conn), feed, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := catalog.Create(ctx, shirt("Linen Shirt", true))
	require.NoError(t, err)
	assert.Equal(t, "shirts", created.Category)
	assert.Equal(t, []string{"S", "M", "L"}, created.Sizes)

	list, err := catalog.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	newName := "Oxford Shirt"
	updated, err := catalog.Update(ctx, created.ID, ProductPatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, newName, updated.Name)

	got, err := catalog.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, newName, got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")))

	require.NoError(t, catalog.Delete(ctx, created.ID))
	_, err = catalog.Get(ctx, created.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(catalog.Delete(ctx, created.ID)))

	assert.Equal(t, []enums.ProductChange{
		enums.ProductChangeInsert, enums.ProductChangeUpdate, enums.ProductChangeDelete,
	}, feed.changes())
}

func TestCatalogFilters(t *testing.T) {
	conn := setupProductTestDB(t)
	catalog, err := NewCatalog(NewRepository(conn), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = catalog.Create(ctx, shirt("Featured Shirt", true))
	require.NoError(t, err)
	plain := shirt("Plain Shirt", false)
	plain.IsNew = true
	_, err = catalog.Create(ctx, plain)
	require.NoError(t, err)
	hat := ProductInput{Name: "Cap", Price: decimal.NewFromInt(12), Category: "hats", Sizes: []string{"One Size"}}
	_, err = catalog.Create(ctx, hat)
	require.NoError(t, err)

	yes := true
	featured, err := catalog.List(ctx, Filter{Featured: &yes})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "Featured Shirt", featured[0].Name)

	fresh, err := catalog.List(ctx, Filter{New: &yes})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "Plain Shirt", fresh[0].Name)

	hats, err := catalog.List(ctx, Filter{Category: "HATS"})
	require.NoError(t, err)
	require.Len(t, hats, 1)

	total, featuredCount, err := catalog.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, featuredCount)
}

func TestCatalogValidation(t *testing.T) {
	conn := setupProductTestDB(t)
	catalog, err := NewCatalog(NewRepository(conn), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	bad := shirt(" ", false)
	bad.Price = decimal.NewFromInt(-1)
	bad.Sizes = nil
	_, err = catalog.Create(ctx, bad)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "price")
	assert.Contains(t, details, "sizes")

	negative := decimal.NewFromInt(-5)
	_, err = catalog.Update(ctx, uuid.New(), ProductPatch{Price: &negative})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = catalog.Update(ctx, uuid.New(), ProductPatch{})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCatalogWatchAppliesRemoteChanges(t *testing.T) {
	conn := setupProductTestDB(t)
	feed := newMemoryFeed()
	repo := NewRepository(conn)
	catalog, err := NewCatalog(repo, feed, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = catalog.List(ctx, Filter{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- catalog.Watch(ctx) }()

	// Another process inserts a row and announces it.
	row := &models.Product{
		ID:       uuid.New(),
		Name:     "Remote Jacket",
		Price:    decimal.NewFromInt(80),
		Category: "jackets",
		Sizes:    pq.StringArray{"M"},
	}
	require.NoError(t, repo.Create(ctx, row))
	feed.events <- realtime.ProductEvent{Type: enums.ProductChangeInsert, ProductID: row.ID}

	require.Eventually(t, func() bool {
		list, _ := catalog.List(ctx, Filter{Category: "jackets"})
		return len(list) == 1
	}, time.Second, 10*time.Millisecond)

	feed.events <- realtime.ProductEvent{Type: enums.ProductChangeDelete, ProductID: row.ID}
	require.Eventually(t, func() bool {
		list, _ := catalog.List(ctx, Filter{Category: "jackets"})
		return len(list) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	feed.mu.Lock()
	assert.True(t, feed.closed)
	feed.mu.Unlock()
}

func TestCatalogKeepsWriteWhenPublishFails(t *testing.T) {
	conn := setupProductTestDB(t)
	feed := newMemoryFeed()
	feed.failPub = true
	catalog, err := NewCatalog(NewRepository(conn), feed, nil, nil)
	require.NoError(t, err)

	created, err := catalog.Create(context.Background(), shirt("Linen Shirt", false))
	require.NoError(t, err)
	got, err := catalog.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", got.Name)
}

func TestNewCatalogRequiresRepo(t *testing.T) {
	_, err := NewCatalog(nil, nil, nil, nil)
	assert.Error(t, err)
}
