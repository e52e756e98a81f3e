package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
)

// MockAccountRegistry is a mock implementation of store.AccountRegistry
type MockAccountRegistry struct {
	mock.Mock
}

func (m *MockAccountRegistry) Create(ctx context.Context, rec *model.TenantRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockAccountRegistry) GetByID(ctx context.Context, id string) (*model.TenantRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantRecord), args.Error(1)
}

func (m *MockAccountRegistry) GetByEmail(ctx context.Context, email string) (*model.TenantRecord, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantRecord), args.Error(1)
}

func (m *MockAccountRegistry) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAccountRegistry) Close() {
	m.Called()
}

// fakeDB implements pool.DB and tracks closure.
type fakeDB struct {
	store  string
	closed atomic.Bool
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func (f *fakeDB) Close() { f.closed.Store(true) }

// fakeProvisioner implements pool.Provisioner over an in-memory set of
// stores, mirroring the engine's create-if-not-exists semantics.
type fakeProvisioner struct {
	mu          sync.Mutex
	stores      map[string]bool
	ensureCalls int
	fail        bool
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{stores: make(map[string]bool)}
}

func (p *fakeProvisioner) Ensure(ctx context.Context, storeName string) (pool.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, fmt.Errorf("engine unreachable")
	}
	p.ensureCalls++
	p.stores[storeName] = true
	return &fakeDB{store: storeName}, nil
}

func (p *fakeProvisioner) Exists(ctx context.Context, storeName string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false, fmt.Errorf("engine unreachable")
	}
	return p.stores[storeName], nil
}

func (p *fakeProvisioner) Drop(ctx context.Context, storeName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("engine unreachable")
	}
	delete(p.stores, storeName)
	return nil
}
