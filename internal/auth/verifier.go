package auth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/directchat/internal/domain"
)

// RevocationChecker reports whether a token id has been revoked.
// Implementations fail closed: on error they return true.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var authFailuresTotal metric.Int64Counter

func init() {
	m := otel.Meter("directchat/auth")
	authFailuresTotal, _ = m.Int64Counter("directchat_auth_failures_total",
		metric.WithDescription("Total rejected authentication attempts"))
}

// Verifier resolves an Authorization header to a user identity.
type Verifier struct {
	validator   *Validator
	revocations RevocationChecker
}

// NewVerifier creates a Verifier. revocations may be nil, which disables the
// revocation check.
func NewVerifier(validator *Validator, revocations RevocationChecker) *Verifier {
	return &Verifier{validator: validator, revocations: revocations}
}

// Authenticate verifies the header and returns the caller's user id.
// Rejections wrap domain.ErrUnauthorized; a revocation store outage wraps
// domain.ErrUnavailable.
func (v *Verifier) Authenticate(ctx context.Context, header string) (domain.UserID, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return domain.UserID{}, v.reject(ctx, "missing_token", err)
	}

	claims, err := v.validator.Validate(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, ErrTokenExpired) {
			reason = "expired_token"
		}
		return domain.UserID{}, v.reject(ctx, reason, err)
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return domain.UserID{}, v.reject(ctx, "revocation_unavailable",
				fmt.Errorf("check revocation: %w: %w", domain.ErrUnavailable, err))
		}
		if revoked {
			return domain.UserID{}, v.reject(ctx, "revoked_token",
				fmt.Errorf("token revoked: %w", domain.ErrUnauthorized))
		}
	}

	return claims.UserID()
}

func (v *Verifier) reject(ctx context.Context, reason string, err error) error {
	authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return err
}
