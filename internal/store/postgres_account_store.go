package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/model"
)

const codeUniqueViolation = "23505"

// PostgresAccountStore implements AccountRegistry on the central registry
// database.
type PostgresAccountStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresAccountStore connects to the registry database and verifies
// connectivity. A failure here is fatal for the process: the registry is the
// one dependency nothing can run without.
func NewPostgresAccountStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresAccountStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	return &PostgresAccountStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// EnsureSchema creates the registry table if absent. Idempotent; runs once at
// startup.
func (s *PostgresAccountStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			store_name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure registry schema: %w", err)
	}
	return nil
}

// Create inserts a tenant record. The unique index on email makes duplicate
// registration fail atomically.
func (s *PostgresAccountStore) Create(ctx context.Context, rec *model.TenantRecord) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, store_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Email,
		rec.PasswordHash,
		rec.StoreName,
		rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create tenant record: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant record by its id.
func (s *PostgresAccountStore) GetByID(ctx context.Context, id string) (*model.TenantRecord, error) {
	return s.get(ctx, `
		SELECT id, email, password_hash, store_name, created_at
		FROM accounts
		WHERE id = $1
	`, id)
}

// GetByEmail retrieves a tenant record by email.
func (s *PostgresAccountStore) GetByEmail(ctx context.Context, email string) (*model.TenantRecord, error) {
	return s.get(ctx, `
		SELECT id, email, password_hash, store_name, created_at
		FROM accounts
		WHERE email = $1
	`, email)
}

func (s *PostgresAccountStore) get(ctx context.Context, query string, arg any) (*model.TenantRecord, error) {
	var rec model.TenantRecord
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&rec.ID,
		&rec.Email,
		&rec.PasswordHash,
		&rec.StoreName,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant record: %w", err)
	}

	return &rec, nil
}

// Ping checks the registry database connection.
func (s *PostgresAccountStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresAccountStore) Close() {
	s.pool.Close()
}

// GetPool exposes the underlying pool for shared use by the provisioner.
func (s *PostgresAccountStore) GetPool() *pgxpool.Pool {
	return s.pool
}
