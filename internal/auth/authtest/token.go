// Package authtest mints access tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aelexs/directchat/internal/auth"
	"github.com/aelexs/directchat/internal/domain"
)

// Defaults shared by tests that build a matching Validator.
const (
	Secret   = "test-jwt-secret"
	Issuer   = "directchat"
	Audience = "directchat"
)

// TokenOption customizes the claims of a minted token.
type TokenOption func(*auth.Claims)

// WithExpiry sets the exp claim.
func WithExpiry(t time.Time) TokenOption {
	return func(c *auth.Claims) { c.ExpiresAt = jwt.NewNumericDate(t) }
}

// WithJTI sets the jti claim.
func WithJTI(jti string) TokenOption {
	return func(c *auth.Claims) { c.ID = jti }
}

// WithSubject overrides the sub claim with an arbitrary string.
func WithSubject(sub string) TokenOption {
	return func(c *auth.Claims) { c.Subject = sub }
}

// WithAudience overrides the aud claim.
func WithAudience(aud string) TokenOption {
	return func(c *auth.Claims) { c.Audience = jwt.ClaimStrings{aud} }
}

// Token signs an HS256 access token for userID with Secret, valid for an hour
// from now unless overridden.
func Token(t testing.TB, userID domain.UserID, opts ...TokenOption) string {
	t.Helper()
	return SignedToken(t, Secret, userID, opts...)
}

// SignedToken is Token with an explicit signing secret.
func SignedToken(t testing.TB, secret string, userID domain.UserID, opts ...TokenOption) string {
	t.Helper()

	now := time.Now().UTC()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.NewString(),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}

	signed, err := jwt.NewWithClaims(auth.SigningMethod, &claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

// Validator returns a Validator matching Token's defaults.
func Validator(clock domain.Clock) *auth.Validator {
	return auth.NewValidator(auth.ValidatorConfig{
		Secret:   Secret,
		Issuer:   Issuer,
		Audience: Audience,
		Clock:    clock,
	})
}
