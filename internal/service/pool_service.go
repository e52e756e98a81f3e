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
	"github.com/frozlabs/todovault/internal/store"
)

// ErrUnresolvable indicates an identity claim that does not resolve to a
// store: the registry holds no row for the user, or the guest store no
// longer physically exists. Callers clear the credential and report an
// authentication failure; this is never fatal.
var ErrUnresolvable = errors.New("identity claim does not resolve to a store")

// PoolService routes a resolved identity to its tenant pool: cache lookup on
// the fast path, reconciliation against the registry (users) or the engine
// catalog (guests) on a miss.
type PoolService struct {
	registry    store.AccountRegistry
	cache       *pool.Cache
	provisioner pool.Provisioner
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewPoolService creates a new pool routing service.
func NewPoolService(
	registry store.AccountRegistry,
	cache *pool.Cache,
	provisioner pool.Provisioner,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PoolService {
	return &PoolService{
		registry:    registry,
		cache:       cache,
		provisioner: provisioner,
		metrics:     m,
		logger:      logger,
	}
}

// Acquire returns the pool for the resolved identity, reconciling the cache
// from durable state on a miss. On ErrUnresolvable the caller must clear the
// credential; any other error is a provisioning failure and surfaces as a
// server error.
func (s *PoolService) Acquire(ctx context.Context, res identity.Resolution) (pool.DB, error) {
	key := res.TenantKey()

	if db, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		return db, nil
	}
	s.metrics.RecordCacheMiss()

	storeName, err := s.reconcileStoreName(ctx, res)
	if err != nil {
		return nil, err
	}

	db, err := s.provisioner.Ensure(ctx, storeName)
	if err != nil {
		s.metrics.RecordProvision(false)
		return nil, fmt.Errorf("failed to provision store %s: %w", storeName, err)
	}
	s.metrics.RecordProvision(true)

	// A concurrent reconciliation for the same key may have won the race;
	// Put converges on a single cached pool either way.
	db = s.cache.Put(key, db)
	s.metrics.SetActivePools(s.cache.Len())

	s.logger.Info("reconciled tenant pool",
		zap.String("tenant_key", key),
		zap.String("store", storeName),
		zap.String("kind", string(res.Kind)))

	return db, nil
}

// reconcileStoreName maps the identity to its store name using the durable
// source of truth: the registry row for users, physical store existence for
// guests. Guests deliberately have no registry row, so their durability is
// exactly the store's existence.
func (s *PoolService) reconcileStoreName(ctx context.Context, res identity.Resolution) (string, error) {
	switch res.Kind {
	case model.IdentityUser:
		rec, err := s.registry.GetByID(ctx, res.UserID)
		if err != nil {
			// Registry miss or registry failure on the request path both
			// mean the claim cannot be honored; recover by invalidating it.
			s.logger.Warn("user claim did not resolve",
				zap.String("user_id", res.UserID),
				zap.Error(err))
			return "", ErrUnresolvable
		}
		return rec.StoreName, nil

	case model.IdentityGuest:
		storeName := model.GuestStoreName(res.Token)
		exists, err := s.provisioner.Exists(ctx, storeName)
		if err != nil {
			return "", fmt.Errorf("failed to probe guest store: %w", err)
		}
		if !exists {
			return "", ErrUnresolvable
		}
		return storeName, nil

	default:
		return "", fmt.Errorf("unknown identity kind %q", res.Kind)
	}
}

// Evict removes and closes the cached pool for key, if any.
func (s *PoolService) Evict(key string) bool {
	removed := s.cache.RemoveAndClose(key)
	s.metrics.SetActivePools(s.cache.Len())
	return removed
}
