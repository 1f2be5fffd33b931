package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/directchat/internal/auth"
	redisclient "github.com/aelexs/directchat/internal/redis"
)

const (
	// revokedJTIPrefix is the key prefix written by the identity service
	// when it revokes an access token: revoked_jti:{jti}.
	revokedJTIPrefix = "revoked_jti:"

	// revokedJTITTL matches the maximum access token lifetime.
	revokedJTITTL = time.Hour
)

// Compile-time check: RevocationStore satisfies auth.RevocationChecker.
var _ auth.RevocationChecker = (*RevocationStore)(nil)

// RevocationStore reads token revocations from Redis. Reads fail closed:
// a Redis error is reported as revoked.
type RevocationStore struct {
	cmd redisclient.Cmdable
}

// NewRevocationStore creates a RevocationStore that uses cmd for Redis operations.
func NewRevocationStore(cmd redisclient.Cmdable) *RevocationStore {
	return &RevocationStore{cmd: cmd}
}

// Revoke marks a JTI as revoked. The identity service owns revocation; this
// write path serves operational tooling and tests.
func (s *RevocationStore) Revoke(ctx context.Context, jti string) error {
	ctx, span := tracer.Start(ctx, "redis.revocation.revoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "SET"),
	)

	if err := s.cmd.Set(ctx, revokedJTIPrefix+jti, "1", revokedJTITTL).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("revoke JTI %q: %w", jti, err)
	}

	return nil
}

// IsRevoked returns (true, nil) if revoked, (false, nil) if not, and
// (true, err) when Redis cannot answer.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.revocation.is_revoked")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EXISTS"),
	)

	n, err := s.cmd.Exists(ctx, revokedJTIPrefix+jti).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true, fmt.Errorf("check revocation %q: %w", jti, err)
	}

	return n > 0, nil
}
