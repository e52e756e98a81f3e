// Package identity resolves the tenant identity of an inbound request from
// its transport credentials and manages those credentials.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frozlabs/todovault/internal/config"
	"github.com/frozlabs/todovault/internal/model"
)

const (
	// UserCookieName carries the signed user credential.
	UserCookieName = "tv_user"
	// GuestCookieName carries the raw guest token.
	GuestCookieName = "tv_guest"
)

// userClaims is the payload of the signed user credential.
type userClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Credentials reads, sets and clears the two identity cookies. Clearing is a
// caller-visible side effect: the cookie is expired on the response.
type Credentials struct {
	cfg config.SessionConfig
}

// NewCredentials creates a credential transport bound to the session config.
func NewCredentials(cfg config.SessionConfig) *Credentials {
	return &Credentials{cfg: cfg}
}

// SetUser attaches a signed user credential to the response.
func (c *Credentials) SetUser(w http.ResponseWriter, userID, email string) error {
	now := time.Now()
	claims := userClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TokenLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
	if err != nil {
		return fmt.Errorf("failed to sign user credential: %w", err)
	}

	http.SetCookie(w, c.cookie(UserCookieName, signed, int(c.cfg.TokenLifetime.Seconds())))
	return nil
}

// ReadUser parses the user credential from the request. The second return
// value reports whether a credential was present at all; a present but
// invalid credential returns an error and must be treated as stale.
func (c *Credentials) ReadUser(r *http.Request) (userID, email string, present bool, err error) {
	cookie, cookieErr := r.Cookie(UserCookieName)
	if cookieErr != nil || cookie.Value == "" {
		return "", "", false, nil
	}

	var claims userClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(c.cfg.Secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", "", true, fmt.Errorf("invalid user credential: %w", err)
	}

	return claims.Subject, claims.Email, true, nil
}

// ClearUser expires the user credential on the response.
func (c *Credentials) ClearUser(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(UserCookieName, "", -1))
}

// SetGuest attaches the guest token to the response.
func (c *Credentials) SetGuest(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(GuestCookieName, token, int(c.cfg.TokenLifetime.Seconds())))
}

// ReadGuest returns the guest token from the request, if any.
func (c *Credentials) ReadGuest(r *http.Request) (token string, present bool) {
	cookie, err := r.Cookie(GuestCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// ClearGuest expires the guest credential on the response.
func (c *Credentials) ClearGuest(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(GuestCookieName, "", -1))
}

func (c *Credentials) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewGuestToken mints a fresh 128-bit random token, hex encoded.
func NewGuestToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate guest token: %w", err)
	}
	token := hex.EncodeToString(b)
	if !model.ValidGuestToken(token) {
		return "", fmt.Errorf("generated token failed validation")
	}
	return token, nil
}
