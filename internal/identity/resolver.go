package identity

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/model"
)

// ErrNoIdentity is returned when a request carries no resolvable identity
// claim. Callers must treat it as an authentication failure, never as an
// implicit guest-session start.
var ErrNoIdentity = errors.New("no identity claim present")

// Resolution is the outcome of resolving a request's identity claims.
// Exactly one identity is authoritative per request.
type Resolution struct {
	Kind   model.IdentityKind
	UserID string
	Email  string
	Token  string
}

// TenantKey returns the pool-cache key for the resolved identity:
// "user_<id>" for users, the raw token for guests.
func (r Resolution) TenantKey() string {
	if r.Kind == model.IdentityUser {
		return model.UserTenantKey(r.UserID)
	}
	return r.Token
}

// StoreName returns the derived store name for the resolved identity. For
// users this is a fallback derivation only; the registry row is authoritative.
func (r Resolution) StoreName() string {
	if r.Kind == model.IdentityUser {
		return model.UserStoreName(r.Email)
	}
	return model.GuestStoreName(r.Token)
}

// Resolver turns the identity claims on a request into exactly one resolved
// identity. Precedence: user beats guest; the losing or malformed claim is
// cleared from the response before resolution proceeds.
type Resolver struct {
	creds  *Credentials
	logger *zap.Logger
}

// NewResolver creates a new identity resolver.
func NewResolver(creds *Credentials, logger *zap.Logger) *Resolver {
	return &Resolver{creds: creds, logger: logger}
}

// Resolve inspects the request's credentials and returns the single
// authoritative identity, or ErrNoIdentity. Conflicts (both claims present)
// are resolved by discarding the guest claim; the clear happens exactly once
// and before the user claim is honored.
func (rs *Resolver) Resolve(w http.ResponseWriter, r *http.Request) (Resolution, error) {
	userID, email, userPresent, userErr := rs.creds.ReadUser(r)
	guestToken, guestPresent := rs.creds.ReadGuest(r)

	if userPresent && userErr != nil {
		// Present but unverifiable user claim is stale: clear it and fall
		// through to whatever the guest claim yields.
		rs.logger.Debug("clearing stale user credential", zap.Error(userErr))
		rs.creds.ClearUser(w)
		userPresent = false
	}

	if guestPresent && !model.ValidGuestToken(guestToken) {
		rs.logger.Debug("clearing malformed guest credential")
		rs.creds.ClearGuest(w)
		guestPresent = false
	}

	switch {
	case userPresent && guestPresent:
		// Conflict: user beats guest. The guest credential is invalidated
		// exactly once, then resolution proceeds as user-only.
		rs.logger.Info("identity conflict, discarding guest claim",
			zap.String("user_id", userID))
		rs.creds.ClearGuest(w)
		return Resolution{Kind: model.IdentityUser, UserID: userID, Email: email}, nil
	case userPresent:
		return Resolution{Kind: model.IdentityUser, UserID: userID, Email: email}, nil
	case guestPresent:
		return Resolution{Kind: model.IdentityGuest, Token: guestToken}, nil
	default:
		return Resolution{}, ErrNoIdentity
	}
}

// GuestToken returns the guest token attached to the request without
// resolving precedence. Used by the session lifecycle endpoints, which
// operate on the guest claim directly.
func (rs *Resolver) GuestToken(r *http.Request) (string, bool) {
	token, present := rs.creds.ReadGuest(r)
	if !present || !model.ValidGuestToken(token) {
		return "", false
	}
	return token, true
}
