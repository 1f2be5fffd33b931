// Package domain contains pure business logic and types.
// No infrastructure dependencies allowed - this is the innermost ring.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ChatID is a value object representing a unique direct chat identifier.
// Always valid in memory - use NewChatID to construct.
type ChatID struct {
	value string
}

// NewChatID creates a ChatID from a raw string, validating it is a valid UUID.
func NewChatID(raw string) (ChatID, error) {
	v, err := parseUUID("chat", raw)
	if err != nil {
		return ChatID{}, err
	}
	return ChatID{value: v}, nil
}

// MustChatID creates a ChatID, panicking on invalid input. Use only in tests.
func MustChatID(raw string) ChatID {
	id, err := NewChatID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateChatID creates a new random ChatID.
func GenerateChatID() ChatID {
	return ChatID{value: uuid.NewString()}
}

func (id ChatID) String() string { return id.value }
func (id ChatID) IsZero() bool   { return id.value == "" }

// UserID is a value object representing a unique user identifier.
type UserID struct {
	value string
}

// NewUserID creates a UserID from a raw string, validating it is a valid UUID.
func NewUserID(raw string) (UserID, error) {
	v, err := parseUUID("user", raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID{value: v}, nil
}

// MustUserID creates a UserID, panicking on invalid input. Use only in tests.
func MustUserID(raw string) UserID {
	id, err := NewUserID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateUserID creates a new random UserID.
func GenerateUserID() UserID {
	return UserID{value: uuid.NewString()}
}

func (id UserID) String() string { return id.value }
func (id UserID) IsZero() bool   { return id.value == "" }

// MessageID is a value object representing a unique message identifier.
type MessageID struct {
	value string
}

// NewMessageID creates a MessageID from a raw string, validating it is a valid UUID.
func NewMessageID(raw string) (MessageID, error) {
	v, err := parseUUID("message", raw)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID{value: v}, nil
}

// GenerateMessageID creates a new random MessageID.
func GenerateMessageID() MessageID {
	return MessageID{value: uuid.NewString()}
}

func (id MessageID) String() string { return id.value }
func (id MessageID) IsZero() bool   { return id.value == "" }

// ConnectionID identifies one live WebSocket connection.
type ConnectionID struct {
	value string
}

// GenerateConnectionID creates a new random ConnectionID.
func GenerateConnectionID() ConnectionID {
	return ConnectionID{value: uuid.NewString()}
}

func (id ConnectionID) String() string { return id.value }
func (id ConnectionID) IsZero() bool   { return id.value == "" }

// PairKey returns the order-independent key of an unordered user pair.
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b UserID) string {
	x, y := a.value, b.value
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// parseUUID validates raw and returns its canonical lowercase form so that
// ids compare equal regardless of the casing the client used.
func parseUUID(kind, raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyID
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s ID %q: %w", kind, raw, ErrInvalidID)
	}
	return strings.ToLower(u.String()), nil
}
