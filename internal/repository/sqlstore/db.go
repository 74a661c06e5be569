// Package sqlstore implements the repositories on database/sql for the
// embedded SQLite and MySQL deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/med-analyzer/internal/config"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DB wraps a database/sql handle and its dialect
type DB struct {
	SQL    *sql.DB
	driver string
}

// NewDB opens and pings the configured database
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{SQL: db, driver: cfg.Driver}, nil
}

// Driver returns the configured dialect name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database
func (db *DB) Close() error {
	return db.SQL.Close()
}

// Ping verifies database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// insertOrder is the column that preserves turn insertion order
func (db *DB) insertOrder() string {
	if db.driver == config.DriverMySQL {
		return "seq"
	}
	return "rowid"
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case config.DriverSQLite:
		return "sqlite", nil
	case config.DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported sql driver: %s", driver)
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// expectOne returns notFound when res touched no rows
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
