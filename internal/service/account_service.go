// Package service contains the core business logic: account registration and
// authentication, pool reconciliation on cache misses, and the guest session
// lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/store"
)

// ErrInvalidCredentials covers both unknown email and wrong password. The
// two cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash keeps the unknown-email path doing the same bcrypt work as the
// wrong-password path.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AccountService manages registered user accounts against the tenant
// registry.
type AccountService struct {
	registry store.AccountRegistry
	logger   *zap.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(registry store.AccountRegistry, logger *zap.Logger) *AccountService {
	return &AccountService{registry: registry, logger: logger}
}

// Register creates a tenant record for email. The store itself is
// provisioned lazily on the user's first data access; the registry row is the
// durable binding. Duplicate emails surface as store.ErrDuplicateEmail.
func (s *AccountService) Register(ctx context.Context, email, password string) (*model.TenantRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rec := &model.TenantRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		StoreName:    model.UserStoreName(email),
		CreatedAt:    time.Now(),
	}

	if err := s.registry.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	s.logger.Info("registered account",
		zap.String("tenant_id", rec.ID),
		zap.String("store", rec.StoreName))

	return rec, nil
}

// Authenticate verifies email and password and returns the tenant record.
// Both unknown email and wrong password collapse to ErrInvalidCredentials;
// any other registry failure is a server error.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.TenantRecord, error) {
	rec, err := s.registry.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same bcrypt cost as the happy path.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return rec, nil
}
