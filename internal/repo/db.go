// Package repo implements the Postgres repositories behind the service interfaces.
package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ dbtx = (*pgxpool.Pool)(nil)
	_ dbtx = (pgx.Tx)(nil)
)

// Repos bundles every repository over one pool.
type Repos struct {
	Products *Products
	Settings *Settings
	Orders   *Orders
	Payments *Payments
	Users    *Users
	Events   *Events
}

// New returns the repositories backed by pool.
func New(pool *pgxpool.Pool) Repos {
	return Repos{
		Products: &Products{db: pool},
		Settings: &Settings{db: pool},
		Orders:   &Orders{db: pool, pool: pool},
		Payments: &Payments{db: pool, pool: pool},
		Users:    &Users{db: pool},
		Events:   &Events{db: pool},
	}
}
