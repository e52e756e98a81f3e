package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/metrics"
	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
)

// ErrNotActive is returned by EndGuest when no guest token was supplied at
// all.
var ErrNotActive = errors.New("no active guest session")

// SessionService manages the guest session lifecycle: Nonexistent → Active
// (store and pool provisioned) → Ended (store destroyed, terminal). An ended
// token can never transition back to Active.
type SessionService struct {
	cache       *pool.Cache
	provisioner pool.Provisioner
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSessionService creates a new guest session service.
func NewSessionService(
	cache *pool.Cache,
	provisioner pool.Provisioner,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		cache:       cache,
		provisioner: provisioner,
		metrics:     m,
		logger:      logger,
	}
}

// StartGuest provisions a guest session and returns its token. A valid
// existing token is reused (idempotent restart of the same session) rather
// than regenerated; otherwise a fresh 128-bit token is minted.
func (s *SessionService) StartGuest(ctx context.Context, existingToken string) (string, pool.DB, error) {
	token := existingToken
	if !model.ValidGuestToken(token) {
		minted, err := identity.NewGuestToken()
		if err != nil {
			return "", nil, err
		}
		token = minted
	}

	db, err := s.provisioner.Ensure(ctx, model.GuestStoreName(token))
	if err != nil {
		s.metrics.RecordProvision(false)
		return "", nil, fmt.Errorf("failed to provision guest store: %w", err)
	}
	s.metrics.RecordProvision(true)

	db = s.cache.Put(token, db)
	s.metrics.SetActivePools(s.cache.Len())
	s.metrics.RecordGuestSession()

	s.logger.Info("guest session active",
		zap.Bool("reused_token", token == existingToken))

	return token, db, nil
}

// EndGuest tears the session down: the cached pool is closed and evicted,
// then the store is destroyed. Data loss is the intended behavior. The store
// drop is attempted even when no pool was cached; failures there are logged
// but the session still ends. ErrNotActive only when no token was supplied.
func (s *SessionService) EndGuest(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotActive
	}

	if s.cache.RemoveAndClose(token) {
		s.metrics.SetActivePools(s.cache.Len())
	}

	if model.ValidGuestToken(token) {
		if err := s.provisioner.Drop(ctx, model.GuestStoreName(token)); err != nil {
			s.logger.Warn("best-effort guest store drop failed", zap.Error(err))
		}
	}

	s.logger.Info("guest session ended")
	return nil
}
