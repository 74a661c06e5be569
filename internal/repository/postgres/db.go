package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const applicationName = "med-analyzer"

// DB holds the pgx pool shared by the conversation, turn, document and
// report repositories.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB opens the pool and waits until the server answers a ping
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Dur("conn_max_lifetime", poolConfig.MaxConnLifetime).
		Msg("Connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool == nil {
		return
	}
	stat := db.Pool.Stat()
	log.Debug().
		Int32("acquired", stat.AcquiredConns()).
		Int32("idle", stat.IdleConns()).
		Int64("acquires", stat.AcquireCount()).
		Msg("Closing PostgreSQL pool")
	db.Pool.Close()
}

// Ping is the readiness check used by the health endpoint
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
