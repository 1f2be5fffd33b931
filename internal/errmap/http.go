// Package errmap translates domain errors into what clients see: an HTTP
// status and title, and the error payload shared by REST responses and
// ON_ERROR socket frames. Unknown errors never leak their details.
package errmap

import (
	"errors"
	"net/http"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/pkg/protocol"
)

// internalMessage replaces the text of any error that is not a known domain error.
const internalMessage = "internal server error"

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Title      string
	Errors     []protocol.FieldError
}

func (e HTTPError) Error() string {
	if len(e.Errors) > 0 {
		return e.Title + ": " + e.Errors[0].Message
	}
	return e.Title
}

// Body returns the client-facing payload.
func (e HTTPError) Body() protocol.Error {
	return protocol.NewError(e.Title, e.Errors...)
}

// httpMapping defines a domain error to HTTP status mapping.
type httpMapping struct {
	err        error
	statusCode int
}

// httpMappings is matched in order with errors.Is; first match wins.
var httpMappings = []httpMapping{
	// Resource errors
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrAlreadyExists, http.StatusConflict},

	{domain.ErrUnauthorized, http.StatusUnauthorized},

	// Request errors; membership violations are reported as bad requests
	{domain.ErrNotMember, http.StatusBadRequest},
	{domain.ErrBadRequest, http.StatusBadRequest},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrEmptyID, http.StatusBadRequest},
	{domain.ErrInvalidID, http.StatusBadRequest},

	// All checks passed but the write did not complete
	{domain.ErrUnprocessable, http.StatusUnprocessableEntity},

	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrSlowConsumer, http.StatusTooManyRequests},
	{domain.ErrUnavailable, http.StatusServiceUnavailable},
}

// ToHTTPError converts an error to its client-facing form. Validation
// failures keep one entry per violated field; domain errors carry their
// message, bare sentinels their class text; anything else becomes a 500.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK, Title: http.StatusText(http.StatusOK)}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return HTTPError{
			StatusCode: http.StatusBadRequest,
			Title:      http.StatusText(http.StatusBadRequest),
			Errors:     verr.Fields,
		}
	}

	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			msg, ok := domain.PublicMessage(err)
			if !ok {
				msg = m.err.Error()
			}
			return HTTPError{
				StatusCode: m.statusCode,
				Title:      http.StatusText(m.statusCode),
				Errors:     []protocol.FieldError{{Message: msg}},
			}
		}
	}

	return HTTPError{
		StatusCode: http.StatusInternalServerError,
		Title:      http.StatusText(http.StatusInternalServerError),
		Errors:     []protocol.FieldError{{Message: internalMessage}},
	}
}

// ToHTTPStatusCode extracts just the HTTP status code for an error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}

// ToErrorPayload returns the ON_ERROR / REST error body for err.
func ToErrorPayload(err error) protocol.Error {
	return ToHTTPError(err).Body()
}
