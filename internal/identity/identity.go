// Package identity resolves bearer tokens to authenticated identities.
// Resolution never fails loudly: a malformed, expired, or forged token
// simply resolves to no identity, letting callers proceed unauthenticated.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL matches the 24h lifetime of issued tokens.
const DefaultTokenTTL = 24 * time.Hour

// Identity is an authenticated user, established at signup and immutable.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolver turns a bearer token into an identity, or nil when the token is
// absent, malformed, expired, or signed with the wrong key.
type Resolver interface {
	Resolve(ctx context.Context, bearerToken string) *Identity
}

type tokenClaims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenResolver verifies HMAC-signed JWTs carrying id and email claims.
type TokenResolver struct {
	secret []byte
}

// NewTokenResolver creates a resolver for tokens signed with the given secret.
func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret)}
}

// Resolve implements Resolver. Any verification failure yields nil.
func (r *TokenResolver) Resolve(_ context.Context, bearerToken string) *Identity {
	if bearerToken == "" {
		return nil
	}

	var claims tokenClaims

	token, err := jwt.ParseWithClaims(bearerToken, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return r.secret, nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return nil
	}

	return &Identity{ID: claims.ID, Email: claims.Email}
}

// Sign mints a token for the given identity. A non-positive ttl falls back
// to DefaultTokenTTL.
func (r *TokenResolver) Sign(id, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := tokenClaims{
		ID:    id,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	return token, token != ""
}
