// Package storage persists small pieces of client state (the logged-in user,
// the cart) in a key-value backend. Everything read back goes through a
// versioned envelope; anything that cannot be read is treated as absent.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/storefront/internal/metrics"
)

// Keys of the persisted client state.
const (
	KeyUser = "session.user"
	KeyCart = "session.cart"
)

// Version is the envelope schema version written by Save.
const Version = 1

var ErrNotFound = errors.New("key not found")

// KV is a raw byte store. Get returns ErrNotFound for absent keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Adapter scopes keys to one profile and encodes values as JSON envelopes.
type Adapter struct {
	kv     KV
	prefix string
	log    *slog.Logger
}

func NewAdapter(kv KV, profile string, log *slog.Logger) *Adapter {
	return &Adapter{
		kv:     kv,
		prefix: fmt.Sprintf("storefront:%s:", profile),
		log:    log,
	}
}

func (a *Adapter) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: Version, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope failed: %w", key, err)
	}
	if err := a.kv.Set(ctx, a.prefix+key, raw); err != nil {
		return fmt.Errorf("save %s failed: %w", key, err)
	}
	return nil
}

// Load decodes the value stored under key into dst and reports whether it did.
// Missing keys, backend failures, corrupt JSON and unknown versions all
// report false; dst is left untouched in that case.
func (a *Adapter) Load(ctx context.Context, key string, dst any) bool {
	raw, err := a.kv.Get(ctx, a.prefix+key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		a.log.WarnContext(ctx, "storage unavailable, treating as empty", slog.String("key", key), slog.Any("error", err))
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		a.log.WarnContext(ctx, "corrupt stored value, treating as empty", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if env.Version != Version {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		a.log.WarnContext(ctx, "unsupported stored version, treating as empty", slog.String("key", key), slog.Int("version", env.Version))
		return false
	}

	if err := json.Unmarshal(env.Data, dst); err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		a.log.WarnContext(ctx, "corrupt stored value, treating as empty", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.kv.Delete(ctx, a.prefix+key); err != nil {
		return fmt.Errorf("delete %s failed: %w", key, err)
	}
	return nil
}
