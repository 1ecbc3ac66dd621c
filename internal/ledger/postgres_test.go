package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*PostgresArchive, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	archive, err := NewPostgresArchive(&Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)

	require.NoError(t, archive.RunMigrations())

	cleanup := func() {
		archive.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return archive, cleanup
}

func newTestOrder(id string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:     id,
		UserID: "u1",
		Items: []domain.CartItem{
			{Product: product("1", "299.99"), Quantity: 2},
		},
		Total:     decimal.RequireFromString("599.98"),
		Status:    domain.OrderStatusPending,
		Shipping:  shipping,
		CreatedAt: createdAt,
	}
}

func TestPostgresArchive_AppendAndAll(t *testing.T) {
	archive, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	older := newTestOrder("ord_a", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	newer := newTestOrder("ord_b", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))

	require.NoError(t, archive.Append(ctx, older))
	require.NoError(t, archive.Append(ctx, newer))

	orders, err := archive.All(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "ord_b", orders[0].ID)
	assert.Equal(t, "ord_a", orders[1].ID)

	got := orders[1]
	assert.Equal(t, older.UserID, got.UserID)
	assert.True(t, older.Total.Equal(got.Total))
	assert.Equal(t, older.Status, got.Status)
	assert.Equal(t, older.Shipping, got.Shipping)
	assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "1", got.Items[0].ID)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestPostgresArchive_DuplicateOrder(t *testing.T) {
	archive, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("ord_dup", time.Now().UTC())

	require.NoError(t, archive.Append(ctx, order))
	assert.ErrorIs(t, archive.Append(ctx, order), ErrDuplicateOrder)
}

func TestPostgresArchive_UpdateStatus(t *testing.T) {
	archive, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, archive.Append(ctx, newTestOrder("ord_s", time.Now().UTC())))
	require.NoError(t, archive.UpdateStatus(ctx, "ord_s", domain.OrderStatusShipped))

	orders, err := archive.All(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusShipped, orders[0].Status)
}

func TestPostgresArchive_LedgerRestore(t *testing.T) {
	archive, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := New(WithArchive(archive))
	placed, err := first.Place(ctx, "u1", []domain.CartItem{{Product: product("3", "49.99"), Quantity: 1}}, shipping)
	require.NoError(t, err)

	restarted := New(WithArchive(archive))
	require.NoError(t, restarted.Restore(ctx))

	got, ok := restarted.Get(placed.ID)
	require.True(t, ok)
	assert.True(t, placed.Total.Equal(got.Total))
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}
