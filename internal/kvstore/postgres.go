package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores blobs in the kv_blobs table created by the migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_blobs WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting blob: %w", err)
	}
	return []byte(value), true, nil
}

// Set upserts the blob and bumps its revision. The revision is informational;
// writes are unconditional (last writer wins).
func (s *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_blobs (key, value, revision, updated_at)
		 VALUES ($1, $2, 1, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value,
		     revision = kv_blobs.revision + 1,
		     updated_at = now()`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("setting blob: %w", err)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_blobs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}

// PoolStats reports connection pool counters for the metrics collector.
func (s *Postgres) PoolStats() (total, idle, acquired int32) {
	st := s.pool.Stat()
	return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
}
