package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoKV struct {
	collection *mongo.Collection
}

func NewMongoKV(db *mongo.Database) *MongoKV {
	return &MongoKV{collection: db.Collection("client_state")}
}

// MongoOptions tunes the client behind the Mongo backend. Zero values fall
// back to the defaults below.
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

const (
	defaultMongoMaxPool        = 20
	defaultMongoMinPool        = 2
	defaultMongoConnectTimeout = 10 * time.Second
)

func (o MongoOptions) clientOptions() *options.ClientOptions {
	maxPool, minPool, timeout := o.MaxPoolSize, o.MinPoolSize, o.ConnectTimeout
	if maxPool == 0 {
		maxPool = defaultMongoMaxPool
	}
	if minPool > maxPool {
		minPool = maxPool
	}
	if timeout <= 0 {
		timeout = defaultMongoConnectTimeout
	}
	return options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout / 2).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(minPool)
}

// ConnectMongoDB opens a client for the client-state database and pings it.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(o.Database), nil
}

func (m *MongoKV) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return doc.Value, nil
}

func (m *MongoKV) Set(ctx context.Context, key string, value []byte) error {
	doc := kvDocument{Key: key, Value: value, UpdatedAt: time.Now()}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return nil
}

func (m *MongoKV) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// CreateIndexes expires client state that has not been written for 90 days.
func (m *MongoKV) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
	}
	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
