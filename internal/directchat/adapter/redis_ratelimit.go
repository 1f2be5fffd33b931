package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/directchat/internal/domain"
	redisclient "github.com/aelexs/directchat/internal/redis"
)

// rateLimitScript atomically increments a counter and sets its TTL on the
// first increment of the window. Works on Redis versions without EXPIRE NX.
const rateLimitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// eventRateKeyPrefix keys the per-user socket event counter: event_rate:{user_id}.
const eventRateKeyPrefix = "event_rate:"

// EventRateLimiter caps the socket events a user may send per fixed window,
// across all service instances. Redis errors deny the event.
type EventRateLimiter struct {
	cmd    redisclient.Cmdable
	limit  int
	window time.Duration
}

// NewEventRateLimiter creates an EventRateLimiter. Non-positive arguments
// fall back to the compiled defaults.
func NewEventRateLimiter(cmd redisclient.Cmdable, limit int, window time.Duration) *EventRateLimiter {
	if limit <= 0 {
		limit = domain.EventRateLimit
	}
	if window < time.Second {
		window = domain.EventRateLimitWindow
	}
	return &EventRateLimiter{cmd: cmd, limit: limit, window: window}
}

// Allow counts one event for userID. Returns (true, nil) while under the
// limit, (false, nil) once it is exceeded and (false, err) on Redis failure.
func (r *EventRateLimiter) Allow(ctx context.Context, userID domain.UserID) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.ratelimit.allow")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	key := eventRateKeyPrefix + userID.String()
	windowSeconds := int(r.window / time.Second)

	count, err := r.cmd.Eval(ctx, rateLimitScript, []string{key}, windowSeconds).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("rate limit check %q: %w", key, err)
	}

	return count <= int64(r.limit), nil
}
