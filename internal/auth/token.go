package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrSecretNotConfigured is returned when no signing secret is set.
	ErrSecretNotConfigured = errors.New("jwt secret not configured")

	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned for any other token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithClock replaces the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer builds an issuer. An empty secret is accepted here and
// reported as ErrSecretNotConfigured on use.
func NewTokenIssuer(secret string, ttl time.Duration, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configured reports whether a signing secret is present.
func (t *TokenIssuer) Configured() bool {
	return len(t.secret) > 0
}

// TTL is the lifetime given to new tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for the given identity.
func (t *TokenIssuer) Issue(userID uuid.UUID, email string) (string, error) {
	if !t.Configured() {
		return "", ErrSecretNotConfigured
	}

	now := t.now()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its claims.
func (t *TokenIssuer) Verify(tokenString string) (Claims, error) {
	if !t.Configured() {
		return Claims{}, ErrSecretNotConfigured
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ParseExpiry reads a token lifetime such as "7d", "12h", "90m" or "3600"
// (seconds).
func ParseExpiry(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	var d time.Duration
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry %q", value)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else if seconds, err := strconv.Atoi(value); err == nil {
		d = time.Duration(seconds) * time.Second
	} else {
		d, err = time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry %q", value)
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("invalid expiry %q", value)
	}
	return d, nil
}
