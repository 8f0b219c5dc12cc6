// Package memory implements an in-memory product catalog for tests and
// local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/storage"
)

type productKey struct {
	sourceURL string
	storeID   int64
}

// Catalog keeps stores and products in maps. Transactions buffer their
// writes and apply them on commit.
type Catalog struct {
	mu       sync.RWMutex
	stores   map[int64]string
	products map[int64]storage.Product
	byKey    map[productKey]int64
	nextID   int64

	// Fault hooks; a non-nil error is returned by the matching operation.
	FailLookup error
	FailStore  error
	FailInsert func(storage.Product) error
	FailUpdate func(id int64) error
}

var _ storage.Catalog = (*Catalog)(nil)

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		stores:   make(map[int64]string),
		products: make(map[int64]storage.Product),
		byKey:    make(map[productKey]int64),
	}
}

// AddStore registers a store row.
func (c *Catalog) AddStore(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores[id] = name
}

// Products returns every stored product ordered by id.
func (c *Catalog) Products() []storage.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]storage.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StoreExists reports whether a store row with id exists.
func (c *Catalog) StoreExists(_ context.Context, storeID int64) (bool, error) {
	if c.FailStore != nil {
		return false, c.FailStore
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.stores[storeID]
	return ok, nil
}

// URLExists reports whether any store has a product at sourceURL.
func (c *Catalog) URLExists(_ context.Context, sourceURL string) (bool, error) {
	if c.FailLookup != nil {
		return false, c.FailLookup
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key := range c.byKey {
		if key.sourceURL == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

// Begin opens a buffered transaction.
func (c *Catalog) Begin(_ context.Context) (storage.CatalogTx, error) {
	return &tx{catalog: c}, nil
}

type pendingUpdate struct {
	id      int64
	changes []storage.Change
	at      time.Time
}

type tx struct {
	catalog  *Catalog
	inserts  []storage.Product
	updates  []pendingUpdate
	finished bool
}

func (t *tx) FindProduct(_ context.Context, sourceURL string, storeID int64) (storage.Product, error) {
	c := t.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byKey[productKey{sourceURL: sourceURL, storeID: storeID}]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return c.products[id], nil
}

func (t *tx) InsertProduct(_ context.Context, p storage.Product) (int64, error) {
	if t.finished {
		return 0, fmt.Errorf("transaction already finished")
	}
	if hook := t.catalog.FailInsert; hook != nil {
		if err := hook(p); err != nil {
			return 0, err
		}
	}
	t.inserts = append(t.inserts, p)
	return 0, nil
}

func (t *tx) UpdateProduct(_ context.Context, id int64, changes []storage.Change, at time.Time) error {
	if t.finished {
		return fmt.Errorf("transaction already finished")
	}
	for _, ch := range changes {
		if err := ch.Validate(); err != nil {
			return err
		}
	}
	if hook := t.catalog.FailUpdate; hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}
	t.updates = append(t.updates, pendingUpdate{id: id, changes: changes, at: at})
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.finished {
		return fmt.Errorf("transaction already finished")
	}
	t.finished = true
	c := t.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range t.inserts {
		c.nextID++
		p.ID = c.nextID
		c.products[p.ID] = p
		c.byKey[productKey{sourceURL: p.SourceURL, storeID: p.StoreID}] = p.ID
	}
	for _, u := range t.updates {
		p, ok := c.products[u.id]
		if !ok {
			return fmt.Errorf("update product %d: %w", u.id, storage.ErrNotFound)
		}
		for _, ch := range u.changes {
			apply(&p, ch)
		}
		p.UpdatedAt = u.at
		c.products[u.id] = p
	}
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	t.finished = true
	t.inserts = nil
	t.updates = nil
	return nil
}

func apply(p *storage.Product, ch storage.Change) {
	switch ch.Column {
	case storage.ColumnName:
		p.Name, _ = ch.Value.(string)
	case storage.ColumnPrice:
		p.Price, _ = ch.Value.(*float64)
	case storage.ColumnDescription:
		p.Description, _ = ch.Value.(string)
	case storage.ColumnImageURL:
		p.ImageURL, _ = ch.Value.(string)
	}
}
