package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/storage"
)

func newMockStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewCatalogStoreWithPool(mock, "products", "stores")
	require.NoError(t, err)
	return store, mock
}

func TestNewCatalogStoreWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCatalogStoreWithPool(mock, "products; DROP TABLE x", "stores")
	require.Error(t, err)
	_, err = NewCatalogStoreWithPool(nil, "", "")
	require.Error(t, err)
	store, err := NewCatalogStoreWithPool(mock, "", "")
	require.NoError(t, err)
	assert.Equal(t, "products", store.products)
	assert.Equal(t, "stores", store.stores)
}

func TestStoreExistsAndURLExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)")).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM products WHERE source_url = $1)")).
		WithArgs("https://shop.test/products/lamp").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM products WHERE source_url = $1)")).
		WithArgs("https://shop.test/products/down").
		WillReturnError(errors.New("connection reset"))

	ok, err := store.StoreExists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.URLExists(ctx, "https://shop.test/products/lamp")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.URLExists(ctx, "https://shop.test/products/down")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindProduct(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Unix(1_700_000_000, 0).UTC()
	price := 89.99
	description := "Warm light"
	image := "https://cdn.test/lamp.jpg"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, description, image_url, created_at, updated_at").
		WithArgs("https://shop.test/products/lamp", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "description", "image_url", "created_at", "updated_at"}).
			AddRow(int64(7), "Lamp", &price, &description, &image, created, created))
	mock.ExpectQuery("SELECT id, name, price, description, image_url, created_at, updated_at").
		WithArgs("https://shop.test/products/missing", int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	p, err := tx.FindProduct(ctx, "https://shop.test/products/lamp", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "Lamp", p.Name)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 89.99, *p.Price, 0.001)
	assert.Equal(t, description, p.Description)
	assert.Equal(t, image, p.ImageURL)
	assert.Equal(t, int64(1), p.StoreID)

	_, err = tx.FindProduct(ctx, "https://shop.test/products/missing", 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertProduct(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(int64(1), "Lamp", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "https://shop.test/products/lamp", now, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertProduct(ctx, storage.Product{
		StoreID:   1,
		Name:      "Lamp",
		SourceURL: "https://shop.test/products/lamp",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductOnlyTouchesChangedColumns(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_500, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET name = $1, price = $2, updated_at = $3 WHERE id = $4")).
		WithArgs("Brass Lamp", pgxmock.AnyArg(), at, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET description = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(pgxmock.AnyArg(), at, int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	price := 79.5
	require.NoError(t, tx.UpdateProduct(ctx, 7, []storage.Change{
		{Column: storage.ColumnName, Value: "Brass Lamp"},
		{Column: storage.ColumnPrice, Value: &price},
	}, at))

	err = tx.UpdateProduct(ctx, 8, []storage.Change{{Column: storage.ColumnDescription, Value: ""}}, at)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = tx.UpdateProduct(ctx, 9, []storage.Change{{Column: "store_id", Value: 2}}, at)
	assert.Error(t, err, "unknown columns never reach SQL")

	require.NoError(t, tx.UpdateProduct(ctx, 9, nil, at))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := store.Begin(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
