package products

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/realtime"
	"github.com/angelmondragon/storefront/pkg/validate"
	"github.com/google/uuid"
)

// ChangeFeed carries product row changes between processes.
type ChangeFeed interface {
	Publish(ctx context.Context, event realtime.ProductEvent) error
	Subscribe(ctx context.Context) (<-chan realtime.ProductEvent, func() error, error)
}

type failureObserver interface {
	IncRemoteFailure(op string)
}

// Catalog serves product listings from memory and keeps them current from the change feed.
type Catalog struct {
	repo    Repository
	feed    ChangeFeed
	metrics failureObserver
	logg    *logger.Logger

	mu     sync.RWMutex
	items  []Product
	loaded bool
}

// NewCatalog builds a catalog. feed, metrics and logg may be nil; without a feed the catalog
// only sees its own writes.
func NewCatalog(repo Repository, feed ChangeFeed, metrics failureObserver, logg *logger.Logger) (*Catalog, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Catalog{repo: repo, feed: feed, metrics: metrics, logg: logg}, nil
}

// Refresh reloads the whole catalog.
func (c *Catalog) Refresh(ctx context.Context) error {
	rows, err := c.repo.List(ctx)
	if err != nil {
		return c.failure(ctx, "list", err)
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// List returns listings matching filter, newest first. The first call loads the catalog.
func (c *Catalog) List(ctx context.Context, filter Filter) ([]Product, error) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.items))
	for _, p := range c.items {
		if filter.match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get returns one listing, from memory when present.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	c.mu.RLock()
	for _, p := range c.items {
		if p.ID == id {
			found := p
			c.mu.RUnlock()
			return &found, nil
		}
	}
	c.mu.RUnlock()

	row, err := c.repo.Find(ctx, id)
	if err != nil {
		return nil, c.failure(ctx, "get", err)
	}
	p := fromModel(*row)
	return &p, nil
}

func (c *Catalog) Create(ctx context.Context, input ProductInput) (*Product, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	row := input.toModel()
	if err := c.repo.Create(ctx, row); err != nil {
		return nil, c.failure(ctx, "create", err)
	}
	p := fromModel(*row)
	c.upsert(p)
	c.publish(ctx, enums.ProductChangeInsert, p.ID)
	return &p, nil
}

func (c *Catalog) Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*Product, error) {
	if err := validate.Struct(patch); err != nil {
		return nil, err
	}
	row, err := c.repo.Find(ctx, id)
	if err != nil {
		return nil, c.failure(ctx, "update", err)
	}
	patch.apply(row)
	if err := c.repo.Save(ctx, row); err != nil {
		return nil, c.failure(ctx, "update", err)
	}
	p := fromModel(*row)
	c.upsert(p)
	c.publish(ctx, enums.ProductChangeUpdate, p.ID)
	return &p, nil
}

func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := c.repo.Delete(ctx, id)
	if err != nil {
		return c.failure(ctx, "delete", err)
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	c.remove(id)
	c.publish(ctx, enums.ProductChangeDelete, id)
	return nil
}

// Counts reports the total and featured listing counts from memory.
func (c *Catalog) Counts(ctx context.Context) (total, featured int, err error) {
	items, err := c.List(ctx, Filter{})
	if err != nil {
		return 0, 0, err
	}
	for _, p := range items {
		if p.Featured {
			featured++
		}
	}
	return len(items), featured, nil
}

// Watch applies change events until ctx ends or the feed closes.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.feed == nil {
		<-ctx.Done()
		return nil
	}
	events, closeFn, err := c.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe product feed: %w", err)
	}
	defer func() {
		if err := closeFn(); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "product feed close failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.Apply(ctx, event)
		}
	}
}

// Apply folds one change event into the in-memory catalog.
func (c *Catalog) Apply(ctx context.Context, event realtime.ProductEvent) {
	if event.Type == enums.ProductChangeDelete {
		c.remove(event.ProductID)
		return
	}
	row, err := c.repo.Find(ctx, event.ProductID)
	switch {
	case db.IsNotFound(err):
		c.remove(event.ProductID)
	case err != nil:
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"product_id": event.ProductID.String(),
			"error":      err.Error(),
		}), "product change not applied")
	default:
		c.upsert(fromModel(*row))
	}
}

func (c *Catalog) upsert(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	for i := range c.items {
		if c.items[i].ID == p.ID {
			c.items[i] = p
			return
		}
	}
	c.items = append([]Product{p}, c.items...)
}

func (c *Catalog) remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Catalog) publish(ctx context.Context, change enums.ProductChange, id uuid.UUID) {
	if c.feed == nil {
		return
	}
	if err := c.feed.Publish(ctx, realtime.ProductEvent{Type: change, ProductID: id}); err != nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"product_id": id.String(),
			"change":     change.String(),
			"error":      err.Error(),
		}), "product change not published")
	}
}

func (c *Catalog) failure(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
	}
	if c.metrics != nil {
		c.metrics.IncRemoteFailure(op + "_product")
	}
	c.logg.Error(ctx, "product operation failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, op+" product")
}
