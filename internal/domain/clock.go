package domain

import "time"

// Clock provides the current time. The domain defines the interface;
// adapters and tests provide implementations.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current UTC time truncated to microseconds, the precision
// Postgres stores for timestamptz.
func (RealClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Ensure RealClock implements Clock at compile time.
var _ Clock = RealClock{}
