// Package storage defines the catalog the scraper writes products into.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a product row does not exist.
var ErrNotFound = errors.New("not found")

// Product is one row of the products table.
type Product struct {
	ID          int64
	StoreID     int64
	Name        string
	Price       *float64
	Description string
	ImageURL    string
	SourceURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Column names an updatable product column.
type Column string

// Updatable product columns.
const (
	ColumnName        Column = "name"
	ColumnPrice       Column = "price"
	ColumnDescription Column = "description"
	ColumnImageURL    Column = "image_url"
)

// Change sets one column to a new value.
type Change struct {
	Column Column
	Value  any
}

// Validate rejects unknown columns before they reach SQL.
func (c Change) Validate() error {
	switch c.Column {
	case ColumnName, ColumnPrice, ColumnDescription, ColumnImageURL:
		return nil
	}
	return fmt.Errorf("column %q is not updatable", c.Column)
}

// Catalog is the product sink.
type Catalog interface {
	// StoreExists reports whether a store row with id exists.
	StoreExists(ctx context.Context, storeID int64) (bool, error)
	// URLExists reports whether any store already has a product at sourceURL.
	URLExists(ctx context.Context, sourceURL string) (bool, error)
	// Begin opens a transaction scoped to one record.
	Begin(ctx context.Context) (CatalogTx, error)
}

// CatalogTx is the per-record unit of work.
type CatalogTx interface {
	// FindProduct returns the product at (sourceURL, storeID) or ErrNotFound.
	FindProduct(ctx context.Context, sourceURL string, storeID int64) (Product, error)
	// InsertProduct stores p and returns its id.
	InsertProduct(ctx context.Context, p Product) (int64, error)
	// UpdateProduct applies changes and stamps updated_at.
	UpdateProduct(ctx context.Context, id int64, changes []Change, at time.Time) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
