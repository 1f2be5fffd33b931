// Package auth verifies access tokens issued by the identity service and
// resolves them to a user identity.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aelexs/directchat/internal/domain"
)

// ErrTokenExpired is returned when a validly signed token has expired.
// Callers can use errors.Is to check for this condition without importing
// the JWT library directly.
var ErrTokenExpired = jwt.ErrTokenExpired

// SigningMethod is the only algorithm accepted on access tokens.
var SigningMethod = jwt.SigningMethodHS256

// Validator validates HMAC-signed JWT access tokens.
type Validator struct {
	secret   []byte
	issuer   string
	audience string
	clock    domain.Clock
}

// ValidatorConfig holds configuration for creating a Validator.
type ValidatorConfig struct {
	Secret   domain.SecretString
	Issuer   string // Empty skips the iss check
	Audience string // Empty skips the aud check
	Clock    domain.Clock
}

// NewValidator creates a new JWT validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{
		secret:   []byte(cfg.Secret.Expose()),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// Validate parses and fully validates an access token. Every failure wraps
// domain.ErrUnauthorized.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{SigningMethod.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("invalid access token: %w: %w", domain.ErrUnauthorized, err)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("invalid sub claim: %w: %w", domain.ErrUnauthorized, err)
	}

	return &claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("no verification secret configured")
	}
	return v.secret, nil
}
