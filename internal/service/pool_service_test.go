package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/metrics"
	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
	"github.com/frozlabs/todovault/internal/store"
)

const testToken = "0123456789abcdef0123456789abcdef"

func newPoolService(registry *MockAccountRegistry, prov pool.Provisioner) (*PoolService, *pool.Cache) {
	cache := pool.NewCache(zap.NewNop())
	svc := NewPoolService(registry, cache, prov, metrics.NewMetrics(), zap.NewNop())
	return svc, cache
}

func userResolution(id, email string) identity.Resolution {
	return identity.Resolution{Kind: model.IdentityUser, UserID: id, Email: email}
}

func guestResolution(token string) identity.Resolution {
	return identity.Resolution{Kind: model.IdentityGuest, Token: token}
}

func TestAcquireUserReconcilesFromRegistry(t *testing.T) {
	registry := new(MockAccountRegistry)
	prov := newFakeProvisioner()
	svc, cache := newPoolService(registry, prov)

	registry.On("GetByID", mock.Anything, "tenant-1").Return(&model.TenantRecord{
		ID:        "tenant-1",
		Email:     "a@x.com",
		StoreName: model.UserStoreName("a@x.com"),
	}, nil)

	db, err := svc.Acquire(context.Background(), userResolution("tenant-1", "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, model.UserStoreName("a@x.com"), db.(*fakeDB).store,
		"handle must be bound to the registry's store name")

	// Second acquire is a cache hit: the registry is not consulted again.
	db2, err := svc.Acquire(context.Background(), userResolution("tenant-1", "a@x.com"))
	require.NoError(t, err)
	assert.Same(t, db, db2)
	registry.AssertNumberOfCalls(t, "GetByID", 1)
	assert.Equal(t, 1, cache.Len())
}

func TestAcquireUserRegistryMissIsUnresolvable(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc, _ := newPoolService(registry, newFakeProvisioner())

	registry.On("GetByID", mock.Anything, "ghost").Return(nil, store.ErrNotFound)

	_, err := svc.Acquire(context.Background(), userResolution("ghost", "g@x.com"))
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestAcquireGuestProbesExistence(t *testing.T) {
	registry := new(MockAccountRegistry)
	prov := newFakeProvisioner()
	svc, _ := newPoolService(registry, prov)

	// Store exists physically (e.g. process restarted, cache is cold).
	prov.stores[model.GuestStoreName(testToken)] = true

	db, err := svc.Acquire(context.Background(), guestResolution(testToken))
	require.NoError(t, err)
	assert.Equal(t, model.GuestStoreName(testToken), db.(*fakeDB).store)
}

func TestAcquireGuestAbsentStoreIsUnresolvable(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc, _ := newPoolService(registry, newFakeProvisioner())

	_, err := svc.Acquire(context.Background(), guestResolution(testToken))
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestAcquireEngineFailureIsNotUnresolvable(t *testing.T) {
	registry := new(MockAccountRegistry)
	prov := newFakeProvisioner()
	prov.fail = true
	svc, _ := newPoolService(registry, prov)

	// A systemic engine outage must surface loudly, not masquerade as a
	// stale credential.
	_, err := svc.Acquire(context.Background(), guestResolution(testToken))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnresolvable)
}

func TestAcquireConvergesAfterEviction(t *testing.T) {
	registry := new(MockAccountRegistry)
	prov := newFakeProvisioner()
	svc, _ := newPoolService(registry, prov)

	registry.On("GetByID", mock.Anything, "tenant-1").Return(&model.TenantRecord{
		ID:        "tenant-1",
		Email:     "a@x.com",
		StoreName: model.UserStoreName("a@x.com"),
	}, nil)

	res := userResolution("tenant-1", "a@x.com")

	before, err := svc.Acquire(context.Background(), res)
	require.NoError(t, err)

	// Simulated restart: cache evicted, durable state intact.
	assert.True(t, svc.Evict(res.TenantKey()))

	after, err := svc.Acquire(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, before.(*fakeDB).store, after.(*fakeDB).store,
		"reconciliation must rebind the same store name")
}

func TestAcquireConcurrentColdCacheConverges(t *testing.T) {
	registry := new(MockAccountRegistry)
	prov := newFakeProvisioner()
	svc, cache := newPoolService(registry, prov)

	registry.On("GetByID", mock.Anything, "tenant-1").Return(&model.TenantRecord{
		ID:        "tenant-1",
		Email:     "a@x.com",
		StoreName: model.UserStoreName("a@x.com"),
	}, nil)

	res := userResolution("tenant-1", "a@x.com")

	const callers = 16
	handles := make([]pool.DB, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = svc.Acquire(context.Background(), res)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Redundant provisioning is allowed; divergent cached pools are not.
	assert.Equal(t, 1, cache.Len())
	cached, ok := cache.Get(res.TenantKey())
	require.True(t, ok)
	for _, h := range handles {
		assert.Equal(t, cached.(*fakeDB).store, h.(*fakeDB).store)
	}
}
