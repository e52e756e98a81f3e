// Package pool manages per-tenant connection pools: the in-memory cache that
// is the fast path of request routing, the idempotent provisioner that
// creates tenant stores, and the reaper that closes idle pools.
package pool

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the query surface of one tenant's bounded connection pool.
// *pgxpool.Pool satisfies it. A DB is bound to exactly one store and is
// exclusively owned by the cache entry holding it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Provisioner idempotently creates, probes and destroys tenant stores.
type Provisioner interface {
	// Ensure creates the store and its schema if absent and returns a fresh
	// bounded pool for it. Safe to call repeatedly and concurrently for the
	// same store name.
	Ensure(ctx context.Context, storeName string) (DB, error)
	// Exists probes the engine catalog for the store's physical existence.
	Exists(ctx context.Context, storeName string) (bool, error)
	// Drop destroys the store. Data loss is intended and irrecoverable.
	Drop(ctx context.Context, storeName string) error
}
