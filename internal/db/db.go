package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/bookstore-api/apiserver/config"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
)

// Open connects to PostgreSQL through lib/pq, verifies the connection and
// wraps it in a bun.DB using the postgres dialect.
func Open(ctx context.Context, cfg config.Config) (*bun.DB, error) {
	sqlDB, err := sql.Open(defaultDBDriver, cfg.Database.PostgresURL())
	if err != nil {
		return nil, err
	}

	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdle)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLife)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return Wrap(sqlDB), nil
}

// Wrap turns an existing *sql.DB into a bun.DB with the postgres dialect.
func Wrap(sqlDB *sql.DB) *bun.DB {
	return bun.NewDB(sqlDB, pgdialect.New())
}
