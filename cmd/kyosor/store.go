package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/kyosor/internal/config"
	"github.com/alecgard/kyosor/internal/crypto"
	"github.com/alecgard/kyosor/internal/kvstore"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// backend is an opened blob store plus what the server needs around it.
type backend struct {
	store  kvstore.Store
	health func(ctx context.Context) error
	close  func()
}

// openBackend opens the configured store, sealing it when an encryption
// key is set. m may be nil; when set, postgres pool stats are exported.
func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	b, err := openRaw(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	if cfg.Encryption.Key != "" {
		cipher, err := crypto.NewCipher(cfg.Encryption.Key)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		b.store = kvstore.NewSealed(b.store, cipher)
		slog.Info("blob encryption enabled")
	}
	return b, nil
}

func openRaw(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		slog.Warn("using in-memory store, data is lost on exit")
		return &backend{store: kvstore.NewMemory(), close: func() {}}, nil

	case config.BackendSQLite:
		db, err := kvstore.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("opened sqlite store", "path", cfg.Store.Path)
		return &backend{
			store:  db,
			health: db.Ping,
			close:  func() { _ = db.Close() },
		}, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.URL)
		if err != nil {
			return nil, err
		}
		ping := func() error { return pool.Ping(ctx) }
		notify := func(err error, wait time.Duration) {
			slog.Warn("database not ready, retrying", "error", err, "wait", wait)
		}
		if err := backoff.RetryNotify(ping, backoff.WithContext(newConnectBackOff(), ctx), notify); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("connected to database")

		pg := kvstore.NewPostgres(pool)
		if m != nil {
			m.RegisterDBPoolCollector(pg.PoolStats)
		}
		return &backend{
			store:  pg,
			health: pool.Ping,
			close:  pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}
