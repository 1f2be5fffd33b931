package errmap

import (
	"strings"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/pkg/protocol"
)

// ValidationError carries every field violation of one request. It unwraps
// to domain.ErrInvalidInput.
type ValidationError struct {
	Fields []protocol.FieldError
}

// NewValidationError creates a ValidationError, or returns nil when there
// are no violations.
func NewValidationError(fields []protocol.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidInput }
