// Package store contains the durable tenant registry and the per-tenant todo
// store. The registry is the source of truth for reconstructing a user's
// pool mapping after a cache miss; todo rows live entirely inside one
// tenant's store.
package store

import (
	"context"
	"errors"

	"github.com/frozlabs/todovault/internal/model"
)

var (
	// ErrNotFound indicates the registry holds no row for the lookup.
	ErrNotFound = errors.New("tenant not found")
	// ErrDuplicateEmail indicates the email already has a registry row.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTodoNotFound indicates the todo id does not exist in the tenant's store.
	ErrTodoNotFound = errors.New("todo not found")
)

// AccountRegistry is the durable mapping from user identity to store name.
type AccountRegistry interface {
	// Create inserts the record. Email uniqueness is enforced by the
	// registry's own storage, never by the caller pre-checking.
	Create(ctx context.Context, rec *model.TenantRecord) error
	GetByID(ctx context.Context, id string) (*model.TenantRecord, error)
	GetByEmail(ctx context.Context, email string) (*model.TenantRecord, error)
	Ping(ctx context.Context) error
	Close()
}
