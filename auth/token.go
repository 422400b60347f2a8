// Package auth implements the TokenAuthority: minting and verifying the
// opaque bearer tokens that carry a session's identity and permissions.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the lifetime of a freshly issued token.
	DefaultTTL = 72 * time.Hour
	// clockSkew is the leeway applied to expiry checks.
	clockSkew = 30 * time.Second
	// AdminPermission is the sole privileged permission string.
	AdminPermission = "admin"
	// UserPermission is granted to every successful login.
	UserPermission = "user"
)

var (
	ErrTokenExpired   = errors.New("token_expired")
	ErrTokenMalformed = errors.New("token_malformed")
	ErrBadSignature   = errors.New("bad_signature")
	ErrEmptySubject   = errors.New("empty_subject")
)

// Claims is the token's payload: {subject, session_id, issued_at,
// expires_at, user_id, permissions}.
type Claims struct {
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the claims carry the given permission.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Authority mints and verifies bearer tokens with a fixed HMAC-SHA256
// secret loaded once at startup. The secret is treated opaquely; length
// validation (≥32 chars) happens in the config layer.
type Authority struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthority constructs a TokenAuthority over the given secret and TTL.
// A zero ttl defaults to DefaultTTL.
func NewAuthority(secret string, ttl time.Duration) *Authority {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authority{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for user_id with the given permission set. A fresh
// session_id is generated for every issuance.
func (a *Authority) Issue(userID string, permissions []string) (string, *Claims, error) {
	if userID == "" {
		return "", nil, ErrEmptySubject
	}

	now := time.Now().UTC()
	claims := &Claims{
		UserID:      userID,
		SessionID:   uuid.New().String(),
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    "rtx-tick-gateway",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify validates a token and returns its claims. It is stateless: it
// performs no registry lookups and has no side effects.
func (a *Authority) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return a.secret, nil
	}, jwt.WithLeeway(clockSkew))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrEmptySubject
	}

	return claims, nil
}
