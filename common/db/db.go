// Package db owns the Postgres connection pool shared by the repositories.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/flow/common/config"
	"github.com/lyzr/flow/common/logger"
)

const (
	connectTimeout = 5 * time.Second
	healthTimeout  = 3 * time.Second
)

// DB embeds pgxpool.Pool so repositories get Query/Exec directly.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New opens a pool sized from config and verifies the server is reachable
// before handing it out. A pool that cannot ping is closed, not returned.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		"host", cfg.Database.Host,
		"db", cfg.Database.Database,
		"max_conns", cfg.Database.MaxConns,
	)

	return &DB{
		Pool: pool,
		log:  log,
	}, nil
}

// Close drains the pool, logging its final shape for shutdown diagnostics.
func (db *DB) Close() {
	stats := db.Pool.Stat()
	db.log.Info("closing database pool",
		"total_conns", stats.TotalConns(),
		"idle_conns", stats.IdleConns(),
	)
	db.Pool.Close()
}

// Health pings with a short deadline so readiness checks cannot hang on a
// wedged pool.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return db.Pool.Ping(ctx)
}
