package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/store"
)

func TestRegisterCreatesRecordWithDerivedStoreName(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc := NewAccountService(registry, zap.NewNop())

	registry.On("Create", mock.Anything, mock.MatchedBy(func(rec *model.TenantRecord) bool {
		return rec.Email == "a@x.com" &&
			rec.StoreName == model.UserStoreName("a@x.com") &&
			rec.ID != "" &&
			rec.PasswordHash != "" &&
			rec.PasswordHash != "pw1"
	})).Return(nil)

	rec, err := svc.Register(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	// The stored hash verifies against the original password.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("pw1")))
	registry.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc := NewAccountService(registry, zap.NewNop())

	registry.On("Create", mock.Anything, mock.Anything).Return(store.ErrDuplicateEmail)

	_, err := svc.Register(context.Background(), "a@x.com", "pw1")
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestAuthenticateSuccess(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc := NewAccountService(registry, zap.NewNop())

	hash, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	require.NoError(t, err)

	registry.On("GetByEmail", mock.Anything, "a@x.com").Return(&model.TenantRecord{
		ID:           "tenant-1",
		Email:        "a@x.com",
		PasswordHash: string(hash),
		StoreName:    model.UserStoreName("a@x.com"),
	}, nil)

	rec, err := svc.Authenticate(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", rec.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc := NewAccountService(registry, zap.NewNop())

	hash, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	require.NoError(t, err)

	registry.On("GetByEmail", mock.Anything, "a@x.com").Return(&model.TenantRecord{
		Email:        "a@x.com",
		PasswordHash: string(hash),
	}, nil)

	_, err = svc.Authenticate(context.Background(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmailSameError(t *testing.T) {
	registry := new(MockAccountRegistry)
	svc := NewAccountService(registry, zap.NewNop())

	registry.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, store.ErrNotFound)

	// Unknown email and wrong password are indistinguishable to the caller.
	_, err := svc.Authenticate(context.Background(), "nobody@x.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
