// Package postgres provides the Postgres-backed product catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-scraper/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	ProductsTable   string
	StoresTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the catalog needs.
type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CatalogStore reads and writes the products and stores tables.
type CatalogStore struct {
	pool     pool
	products string
	stores   string
}

var _ storage.Catalog = (*CatalogStore)(nil)

// NewCatalogStore connects to Postgres and verifies the connection.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	products, stores, err := tableNames(cfg.ProductsTable, cfg.StoresTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &CatalogStore{pool: p, products: products, stores: stores}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool, productsTable, storesTable string) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	products, stores, err := tableNames(productsTable, storesTable)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: p, products: products, stores: stores}, nil
}

func tableNames(products, stores string) (string, string, error) {
	if products == "" {
		products = "products"
	}
	if stores == "" {
		stores = "stores"
	}
	for _, table := range []string{products, stores} {
		if !validTableName.MatchString(table) {
			return "", "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return products, stores, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreExists reports whether the stores table has a row with storeID.
func (s *CatalogStore) StoreExists(ctx context.Context, storeID int64) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.stores)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, storeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup store %d: %w", storeID, err)
	}
	return exists, nil
}

// URLExists reports whether any store has a product at sourceURL.
func (s *CatalogStore) URLExists(ctx context.Context, sourceURL string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE source_url = $1)`, s.products)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, sourceURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup product url: %w", err)
	}
	return exists, nil
}

// Begin opens a transaction for one record.
func (s *CatalogStore) Begin(ctx context.Context) (storage.CatalogTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &catalogTx{tx: tx, products: s.products}, nil
}

type catalogTx struct {
	tx       pgx.Tx
	products string
}

func (t *catalogTx) FindProduct(ctx context.Context, sourceURL string, storeID int64) (storage.Product, error) {
	query := fmt.Sprintf(`
SELECT id, name, price, description, image_url, created_at, updated_at
FROM %s
WHERE source_url = $1 AND store_id = $2
ORDER BY id
LIMIT 1`, t.products)

	var (
		p           storage.Product
		description *string
		imageURL    *string
	)
	err := t.tx.QueryRow(ctx, query, sourceURL, storeID).Scan(
		&p.ID, &p.Name, &p.Price, &description, &imageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Product{}, fmt.Errorf("find product: %w", err)
	}
	p.StoreID = storeID
	p.SourceURL = sourceURL
	p.Description = deref(description)
	p.ImageURL = deref(imageURL)
	return p, nil
}

func (t *catalogTx) InsertProduct(ctx context.Context, p storage.Product) (int64, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	store_id,
	name,
	price,
	description,
	image_url,
	source_url,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) RETURNING id`, t.products)

	var id int64
	err := t.tx.QueryRow(ctx, query,
		p.StoreID,
		p.Name,
		p.Price,
		nullIfEmpty(p.Description),
		nullIfEmpty(p.ImageURL),
		p.SourceURL,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func (t *catalogTx) UpdateProduct(ctx context.Context, id int64, changes []storage.Change, at time.Time) error {
	if len(changes) == 0 {
		return nil
	}
	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return err
		}
		args = append(args, columnValue(c))
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Column, len(args)))
	}
	args = append(args, at)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, t.products, strings.Join(sets, ", "), len(args))

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update product %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (t *catalogTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *catalogTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func columnValue(c storage.Change) any {
	if s, ok := c.Value.(string); ok && (c.Column == storage.ColumnDescription || c.Column == storage.ColumnImageURL) {
		return nullIfEmpty(s)
	}
	return c.Value
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
