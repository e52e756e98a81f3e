package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/config"
	apierrors "github.com/frozlabs/todovault/internal/errors"
	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/metrics"
	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
	"github.com/frozlabs/todovault/internal/service"
	"github.com/frozlabs/todovault/internal/store"
)

const testGuestToken = "0123456789abcdef0123456789abcdef"

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Create(ctx context.Context, rec *model.TenantRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRegistry) GetByID(ctx context.Context, id string) (*model.TenantRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantRecord), args.Error(1)
}

func (m *mockRegistry) GetByEmail(ctx context.Context, email string) (*model.TenantRecord, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantRecord), args.Error(1)
}

func (m *mockRegistry) Ping(ctx context.Context) error { return nil }
func (m *mockRegistry) Close()                         {}

type fakeDB struct{ store string }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (f *fakeDB) Ping(ctx context.Context) error                               { return nil }
func (f *fakeDB) Close()                                                       {}

type fakeProvisioner struct {
	mu     sync.Mutex
	stores map[string]bool
}

func (p *fakeProvisioner) Ensure(ctx context.Context, storeName string) (pool.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stores[storeName] = true
	return &fakeDB{store: storeName}, nil
}

func (p *fakeProvisioner) Exists(ctx context.Context, storeName string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stores[storeName], nil
}

func (p *fakeProvisioner) Drop(ctx context.Context, storeName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stores, storeName)
	return nil
}

type attacherFixture struct {
	attacher *TenantAttacher
	creds    *identity.Credentials
	registry *mockRegistry
	prov     *fakeProvisioner
}

func newAttacherFixture() *attacherFixture {
	logger := zap.NewNop()
	creds := identity.NewCredentials(config.SessionConfig{
		Secret:        "test-secret",
		TokenLifetime: time.Hour,
	})
	registry := new(mockRegistry)
	prov := &fakeProvisioner{stores: make(map[string]bool)}
	cache := pool.NewCache(logger)
	pools := service.NewPoolService(registry, cache, prov, metrics.NewMetrics(), logger)
	resolver := identity.NewResolver(creds, logger)
	attacher := NewTenantAttacher(resolver, pools, creds, apierrors.NewHandler(logger), time.Second, logger)

	return &attacherFixture{attacher: attacher, creds: creds, registry: registry, prov: prov}
}

// attachedTenant runs the middleware and captures what reached the inner
// handler.
func attachedTenant(f *attacherFixture, r *http.Request) (*httptest.ResponseRecorder, *Tenant) {
	var got *Tenant
	handler := f.attacher.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenant, ok := TenantFrom(r.Context()); ok {
			got = &tenant
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec, got
}

func userCookie(t *testing.T, creds *identity.Credentials, id, email string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, creds.SetUser(rec, id, email))
	return rec.Result().Cookies()[0]
}

func TestAttachNoIdentityIs401(t *testing.T) {
	f := newAttacherFixture()

	rec, tenant := attachedTenant(f, httptest.NewRequest(http.MethodGet, "/v1/todos", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, tenant, "handler must never run without an attached tenant")
	assert.Contains(t, rec.Body.String(), "NOT_AUTHENTICATED")
}

func TestAttachUserHappyPath(t *testing.T) {
	f := newAttacherFixture()

	f.registry.On("GetByID", mock.Anything, "tenant-1").Return(&model.TenantRecord{
		ID:        "tenant-1",
		Email:     "a@x.com",
		StoreName: model.UserStoreName("a@x.com"),
	}, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	r.AddCookie(userCookie(t, f.creds, "tenant-1", "a@x.com"))

	rec, tenant := attachedTenant(f, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tenant)
	assert.Equal(t, model.IdentityUser, tenant.Resolution.Kind)
	assert.Equal(t, model.UserStoreName("a@x.com"), tenant.DB.(*fakeDB).store)
}

func TestAttachStaleUserClearsCredential(t *testing.T) {
	f := newAttacherFixture()

	f.registry.On("GetByID", mock.Anything, "gone").Return(nil, store.ErrNotFound)

	r := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	r.AddCookie(userCookie(t, f.creds, "gone", "gone@x.com"))

	rec, tenant := attachedTenant(f, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, tenant)
	assert.Contains(t, rec.Body.String(), "STALE_CREDENTIAL")

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.UserCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "stale user credential must be cleared on the response")
}

func TestAttachGuestAfterRestart(t *testing.T) {
	f := newAttacherFixture()
	f.prov.stores[model.GuestStoreName(testGuestToken)] = true

	r := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	r.AddCookie(&http.Cookie{Name: identity.GuestCookieName, Value: testGuestToken})

	rec, tenant := attachedTenant(f, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tenant)
	assert.Equal(t, model.GuestStoreName(testGuestToken), tenant.DB.(*fakeDB).store)
}

func TestAttachEndedGuestClearsCredential(t *testing.T) {
	f := newAttacherFixture()

	r := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	r.AddCookie(&http.Cookie{Name: identity.GuestCookieName, Value: testGuestToken})

	rec, tenant := attachedTenant(f, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, tenant)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.GuestCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

// Two distinct identities attached concurrently must never see each other's
// handle.
func TestAttachIsolatesConcurrentTenants(t *testing.T) {
	f := newAttacherFixture()

	f.registry.On("GetByID", mock.Anything, "tenant-a").Return(&model.TenantRecord{
		ID: "tenant-a", Email: "a@x.com", StoreName: model.UserStoreName("a@x.com"),
	}, nil)
	f.registry.On("GetByID", mock.Anything, "tenant-b").Return(&model.TenantRecord{
		ID: "tenant-b", Email: "b@x.com", StoreName: model.UserStoreName("b@x.com"),
	}, nil)

	cookieA := userCookie(t, f.creds, "tenant-a", "a@x.com")
	cookieB := userCookie(t, f.creds, "tenant-b", "b@x.com")

	stores := make([]string, 2)
	var wg sync.WaitGroup
	for i, cookie := range []*http.Cookie{cookieA, cookieB} {
		wg.Add(1)
		go func(i int, cookie *http.Cookie) {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
			r.AddCookie(cookie)
			_, tenant := attachedTenant(f, r)
			if tenant != nil {
				stores[i] = tenant.DB.(*fakeDB).store
			}
		}(i, cookie)
	}
	wg.Wait()

	assert.Equal(t, model.UserStoreName("a@x.com"), stores[0])
	assert.Equal(t, model.UserStoreName("b@x.com"), stores[1])
	assert.NotEqual(t, stores[0], stores[1])
}
