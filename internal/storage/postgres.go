package storage

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/logger"
)

//go:embed schema.sql
var schemaDDL string

const (
	pgGet    = `SELECT data FROM snapshots WHERE key = $1`
	pgUpsert = `INSERT INTO snapshots (key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	pgDelete = `DELETE FROM snapshots WHERE key = $1`
)

// PostgresStore keeps blobs in a PostgreSQL (or CockroachDB) table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with retries and applies the schema.
func OpenPostgres(ctx context.Context, uri string, retries int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	if retries < 1 {
		retries = 1
	}
	backoff := 2 * time.Second
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= retries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}
		connErr := errors.Wrap(err, errors.ErrorTypeCache, errors.CodeCacheFailed, "Snapshot database unreachable")
		if !errors.ShouldRetry(connErr, attempt, retries) {
			break
		}
		logger.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	if pool == nil {
		return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", retries, err)
	}

	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	logger.Info("Snapshot database connected", zap.Int32("max_conns", cfg.MaxConns))
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, pgGet, key).Scan(&data)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return data, nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if _, err := p.pool.Exec(ctx, pgUpsert, key, data); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, pgDelete, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (p *PostgresStore) Name() string { return "postgres" }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
