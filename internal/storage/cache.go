package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// Cache stores one snapshot per identity on a BlobStore.
type Cache struct {
	store BlobStore
}

// NewCache wraps store.
func NewCache(store BlobStore) *Cache {
	return &Cache{store: store}
}

// Store returns the underlying backend.
func (c *Cache) Store() BlobStore { return c.store }

func snapshotKey(pubkey string) string {
	return constants.CacheKeyPrefix + pubkey
}

// Load returns the cached snapshot of pubkey. Anything missing, unreadable
// or structurally incomplete is reported as absent.
func (c *Cache) Load(ctx context.Context, pubkey string) (*models.Snapshot, bool) {
	log := logger.FromContext(ctx).With(zap.String("backend", c.store.Name()))

	data, err := c.store.Get(ctx, snapshotKey(pubkey))
	if stderrors.Is(err, ErrNotFound) {
		metrics.RecordCacheOp(c.store.Name(), "load", nil)
		return nil, false
	}
	if err != nil {
		metrics.RecordCacheOp(c.store.Name(), "load", err)
		log.Warn("cache read failed, starting cold", zap.Error(errors.CacheError("load", pubkey, err)))
		return nil, false
	}

	snap, err := DecodeSnapshot(data)
	metrics.RecordCacheOp(c.store.Name(), "load", err)
	if err != nil {
		log.Warn("cached snapshot rejected, starting cold", zap.Error(err))
		return nil, false
	}
	return snap, true
}

// Save overwrites the cached snapshot of pubkey.
func (c *Cache) Save(ctx context.Context, pubkey string, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err == nil {
		err = c.store.Put(ctx, snapshotKey(pubkey), data)
	}
	metrics.RecordCacheOp(c.store.Name(), "save", err)
	if err != nil {
		return errors.CacheError("save", pubkey, err)
	}
	return nil
}

// Forget deletes the cached snapshot of pubkey.
func (c *Cache) Forget(ctx context.Context, pubkey string) error {
	if err := c.store.Delete(ctx, snapshotKey(pubkey)); err != nil {
		return errors.CacheError("delete", pubkey, err)
	}
	return nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

// DecodeSnapshot parses data and checks that every top-level key is present
// and not null.
func DecodeSnapshot(data []byte) (*models.Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for _, key := range models.SnapshotKeys {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("snapshot is missing %q", key)
		}
	}

	snap := &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.EnsureMaps()
	return snap, nil
}
