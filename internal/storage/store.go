package storage

import (
	"context"
	stderrors "errors"
)

// ErrNotFound is returned by a BlobStore when a key holds nothing.
var ErrNotFound = stderrors.New("not found")

// BlobStore is a key/value backend for serialized snapshots.
type BlobStore interface {
	// Get returns ErrNotFound when key is unset.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value of key.
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs and metrics.
	Name() string
	Close() error
}
