package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"
)

// IdentityKind discriminates the two tenant identity types.
type IdentityKind string

const (
	IdentityUser  IdentityKind = "user"
	IdentityGuest IdentityKind = "guest"
)

// TenantRecord is the durable registry row binding a registered user to its
// isolated store. Rows are created once at registration and never updated.
type TenantRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	StoreName    string    `json:"store_name"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	userStorePrefix  = "user_"
	guestStorePrefix = "guest_"
)

// Store names are the only dynamic identifiers ever interpolated into DDL,
// so they are restricted to a fixed-length lowercase hex alphabet.
var (
	storeNamePattern  = regexp.MustCompile(`^(user_[0-9a-f]{24}|guest_[0-9a-f]{32})$`)
	guestTokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// UserStoreName derives the store name for a registered user. The derivation
// is pure: the same email always yields the same name. The registry row
// remains the authoritative binding.
func UserStoreName(email string) string {
	sum := sha256.Sum256([]byte(email))
	return userStorePrefix + hex.EncodeToString(sum[:12])
}

// GuestStoreName derives the store name for a guest token.
func GuestStoreName(token string) string {
	return guestStorePrefix + token
}

// ValidStoreName reports whether name matches the allow-list of derivable
// store names.
func ValidStoreName(name string) bool {
	return storeNamePattern.MatchString(name)
}

// ValidGuestToken reports whether token is a well-formed 128-bit hex token.
func ValidGuestToken(token string) bool {
	return guestTokenPattern.MatchString(token)
}

// UserTenantKey returns the pool-cache key for a user tenant.
func UserTenantKey(userID string) string {
	return "user_" + userID
}
