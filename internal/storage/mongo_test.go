package storage

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) (*MongoKV, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoOptions{URI: uri, Database: "testdb", MaxPoolSize: 4})
	require.NoError(t, err)

	kv := NewMongoKV(db)
	require.NoError(t, kv.CreateIndexes(ctx))

	cleanup := func() {
		db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return kv, cleanup
}

func TestMongoOptions_Defaults(t *testing.T) {
	opts := MongoOptions{URI: "mongodb://localhost:27017", MinPoolSize: 50}.clientOptions()

	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(defaultMongoMaxPool), *opts.MaxPoolSize)
	require.NotNil(t, opts.MinPoolSize)
	assert.Equal(t, uint64(defaultMongoMaxPool), *opts.MinPoolSize, "min pool is capped at max")
	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, defaultMongoConnectTimeout, *opts.ConnectTimeout)
}

func TestMongoOptions_Explicit(t *testing.T) {
	opts := MongoOptions{URI: "mongodb://localhost:27017", MaxPoolSize: 8, MinPoolSize: 1, ConnectTimeout: 4 * time.Second}.clientOptions()

	assert.Equal(t, uint64(8), *opts.MaxPoolSize)
	assert.Equal(t, uint64(1), *opts.MinPoolSize)
	assert.Equal(t, 4*time.Second, *opts.ConnectTimeout)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
}

func TestMongoKV(t *testing.T) {
	kv, cleanup := setupTestMongo(t)
	defer cleanup()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "k", []byte("one")))
	require.NoError(t, kv.Set(ctx, "k", []byte("two")))

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoKV_WithAdapter(t *testing.T) {
	kv, cleanup := setupTestMongo(t)
	defer cleanup()
	ctx := context.Background()
	a := newAdapter(kv, "p1")

	cart := []domain.CartItem{{Product: domain.Product{ID: "5"}, Quantity: 3}}
	require.NoError(t, a.Save(ctx, KeyCart, cart))

	var restored []domain.CartItem
	require.True(t, a.Load(ctx, KeyCart, &restored))
	require.Len(t, restored, 1)
	assert.Equal(t, 3, restored[0].Quantity)
}
