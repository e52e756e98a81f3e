package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/config"
	"github.com/frozlabs/todovault/internal/model"
)

// SQLSTATE codes from the engine.
const (
	codeDuplicateDatabase = "42P04"
)

const todoSchema = `
	CREATE TABLE IF NOT EXISTS todos (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE
	)
`

// PostgresProvisioner provisions per-tenant databases on a single PostgreSQL
// engine. DDL runs through the shared admin pool (bound to the registry
// database); tenant pools are opened per store with a small connection
// ceiling.
type PostgresProvisioner struct {
	admin  *pgxpool.Pool
	cfg    config.DatabaseConfig
	pools  config.PoolConfig
	logger *zap.Logger
}

// NewPostgresProvisioner creates a provisioner using admin for catalog and
// DDL operations.
func NewPostgresProvisioner(
	admin *pgxpool.Pool,
	cfg config.DatabaseConfig,
	pools config.PoolConfig,
	logger *zap.Logger,
) *PostgresProvisioner {
	return &PostgresProvisioner{
		admin:  admin,
		cfg:    cfg,
		pools:  pools,
		logger: logger,
	}
}

// Exists probes the engine catalog for the store. The name is checked against
// the allow-list first and the probe itself is parameterized, so no dynamic
// identifier reaches the query text.
func (p *PostgresProvisioner) Exists(ctx context.Context, storeName string) (bool, error) {
	if !model.ValidStoreName(storeName) {
		return false, fmt.Errorf("invalid store name %q", storeName)
	}

	var exists bool
	err := p.admin.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`,
		storeName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe store existence: %w", err)
	}
	return exists, nil
}

// Ensure creates the store database and schema if absent and returns a fresh
// bounded pool for it. Both the database and the table creation are
// create-if-not-exists, so repeat or racing calls converge on one physical
// store.
func (p *PostgresProvisioner) Ensure(ctx context.Context, storeName string) (DB, error) {
	if !model.ValidStoreName(storeName) {
		return nil, fmt.Errorf("invalid store name %q", storeName)
	}

	exists, err := p.Exists(ctx, storeName)
	if err != nil {
		return nil, err
	}

	if !exists {
		// CREATE DATABASE cannot take a parameter placeholder; the name has
		// passed the allow-list and is additionally quoted as an identifier.
		ddl := fmt.Sprintf(`CREATE DATABASE %s`, pgx.Identifier{storeName}.Sanitize())
		if _, err := p.admin.Exec(ctx, ddl); err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != codeDuplicateDatabase {
				return nil, fmt.Errorf("failed to create store %s: %w", storeName, err)
			}
			// A racing provisioner created it first; same store either way.
			p.logger.Debug("store already created by concurrent provisioner",
				zap.String("store", storeName))
		} else {
			p.logger.Info("provisioned tenant store", zap.String("store", storeName))
		}
	}

	db, err := p.open(ctx, storeName)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(ctx, todoSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema in %s: %w", storeName, err)
	}

	return db, nil
}

// Drop destroys the store database. Existing pools for it must be closed
// first; FORCE terminates any connection that slipped through.
func (p *PostgresProvisioner) Drop(ctx context.Context, storeName string) error {
	if !model.ValidStoreName(storeName) {
		return fmt.Errorf("invalid store name %q", storeName)
	}

	ddl := fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, pgx.Identifier{storeName}.Sanitize())
	if _, err := p.admin.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to drop store %s: %w", storeName, err)
	}

	p.logger.Info("destroyed tenant store", zap.String("store", storeName))
	return nil
}

// open creates the bounded tenant pool and verifies connectivity.
func (p *PostgresProvisioner) open(ctx context.Context, storeName string) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d",
		p.cfg.Host, p.cfg.Port, storeName, p.cfg.User, p.cfg.Password, p.pools.TenantMaxConns,
	)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping store %s: %w", storeName, err)
	}

	return db, nil
}
