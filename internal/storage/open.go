package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/logger"
)

// Backend names accepted in the cache section.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Open builds the configured backend and wraps it in a Cache.
func Open(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	var (
		store BlobStore
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = NewMemoryStore()
	case BackendFile:
		store, err = NewFileStore(cfg.Dir)
	case BackendSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLitePath)
	case BackendPostgres:
		store, err = OpenPostgres(ctx, cfg.PostgresURL, cfg.ConnectRetries)
	case BackendRedis:
		store, err = OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	logger.Debug("Snapshot cache ready", zap.String("backend", store.Name()))
	return NewCache(store), nil
}
