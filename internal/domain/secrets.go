package domain

import "log/slog"

// SecretString wraps sensitive configuration values such as the JWT secret
// and the message encryption secret. It never prints or logs its content.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer so the value survives a misconfigured
// ReplaceAttr without leaking.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value. Call it only where the secret is
// consumed (key derivation, token verification).
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

var _ slog.LogValuer = SecretString("")
