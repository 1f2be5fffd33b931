package domain

import "errors"

// Sentinel error classes. Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Request errors
	ErrInvalidInput = errors.New("invalid input")
	ErrBadRequest   = errors.New("bad request")

	// Resource errors
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// Authorization errors
	ErrUnauthorized = errors.New("authentication required")
	ErrNotMember    = errors.New("user is not a member of this chat")

	// Persistence errors (all checks passed but the write could not complete)
	ErrUnprocessable = errors.New("unprocessable entity")

	// Operational errors
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnavailable  = errors.New("service temporarily unavailable")
	ErrSlowConsumer = errors.New("client not consuming messages fast enough")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// Error is a domain failure with a human-readable message. It unwraps to its
// class sentinel, so errors.Is(err, ErrNotFound) keeps working.
type Error struct {
	Kind    error
	Message string
}

// NewError creates an Error of the given class.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

// Direct chat failures surfaced to clients verbatim.
var (
	ErrChatMemberMissing = NewError(ErrBadRequest, "one of the chat members does not exist")
	ErrSelfChat          = NewError(ErrBadRequest, "cannot create a direct chat with yourself")
	ErrChatNotMember     = NewError(ErrNotMember, "you are not a member of this direct chat")
	ErrDirectChatExists  = NewError(ErrAlreadyExists, "direct chat between these users already exists")
	ErrDirectChatMissing = NewError(ErrNotFound, "direct chat with provided id does not exist")
	ErrChatNotCreated    = NewError(ErrUnprocessable, "direct chat could not be created")
	ErrMessageNotCreated = NewError(ErrUnprocessable, "message could not be sent")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrBadRequest,
	ErrNotFound,
	ErrAlreadyExists,
	ErrNotMember,
	ErrUnauthorized,
	ErrEmptyID,
	ErrInvalidID,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publicClasses are the sentinels whose text may be shown to a client.
var publicClasses = append(append([]error(nil), clientErrors...),
	ErrUnprocessable,
	ErrRateLimited,
	ErrUnavailable,
	ErrSlowConsumer,
)

// PublicMessage returns the message that may be shown to a client: the
// message of a *Error, or the text of the class sentinel err wraps. Wrapped
// causes are never included. Anything else yields ok=false.
func PublicMessage(err error) (string, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Message, true
	}
	for _, class := range publicClasses {
		if errors.Is(err, class) {
			return class.Error(), true
		}
	}
	return "", false
}
