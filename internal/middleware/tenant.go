package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	apierrors "github.com/frozlabs/todovault/internal/errors"
	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
	"github.com/frozlabs/todovault/internal/service"
)

type tenantContextKey struct{}

// Tenant is what the attachment middleware places on the request context:
// the resolved identity and the pool bound to exactly that identity's store.
type Tenant struct {
	Resolution identity.Resolution
	DB         pool.DB
}

// TenantFrom extracts the attached tenant from ctx.
func TenantFrom(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok
}

// TenantAttacher is the single entry point data handlers depend on. Per
// request it runs, strictly in order: identity resolution, pool cache
// lookup, reconciliation on a miss, handle attachment. Any failure ends in a
// clean 401 with the stale credential cleared, or a loud server error; never
// a wrong-tenant handle.
type TenantAttacher struct {
	resolver *identity.Resolver
	pools    *service.PoolService
	creds    *identity.Credentials
	errors   *apierrors.Handler
	timeout  time.Duration
	logger   *zap.Logger
}

// NewTenantAttacher creates the attachment middleware.
func NewTenantAttacher(
	resolver *identity.Resolver,
	pools *service.PoolService,
	creds *identity.Credentials,
	errorHandler *apierrors.Handler,
	timeout time.Duration,
	logger *zap.Logger,
) *TenantAttacher {
	return &TenantAttacher{
		resolver: resolver,
		pools:    pools,
		creds:    creds,
		errors:   errorHandler,
		timeout:  timeout,
		logger:   logger,
	}
}

// Attach resolves the request's identity and attaches its pool to the
// context.
func (a *TenantAttacher) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := a.resolver.Resolve(w, r)
		if err != nil {
			a.errors.HandleError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()

		db, err := a.pools.Acquire(ctx, res)
		if err != nil {
			if errors.Is(err, service.ErrUnresolvable) {
				a.clearCredential(w, res)
			}
			a.errors.HandleError(w, r, err)
			return
		}

		ctx = context.WithValue(r.Context(), tenantContextKey{}, Tenant{Resolution: res, DB: db})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *TenantAttacher) clearCredential(w http.ResponseWriter, res identity.Resolution) {
	if res.Kind == model.IdentityUser {
		a.creds.ClearUser(w)
	} else {
		a.creds.ClearGuest(w)
	}
	a.logger.Info("cleared stale credential", zap.String("kind", string(res.Kind)))
}
