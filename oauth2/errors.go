package oauth2

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCode is the RFC 6749 §5.2 error vocabulary for the token and
// authorization endpoints.
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrServerError             ErrorCode = "server_error"
)

// Error is a protocol-level error. Anything crossing the HTTP boundary from
// the grant, introspection, or authorization paths is one of these; internal
// failures are mapped to server_error before they surface so that no storage
// or crypto detail leaks to the caller.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a protocol error with an optional description.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// StatusCode maps the error code to the HTTP status used at the token
// endpoint. invalid_client is 401 per RFC 6749 §5.2.
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrInvalidClient:
		return http.StatusUnauthorized
	case ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsError extracts the protocol error from err's chain. Errors that carry no
// protocol code become server_error with no description, never exposing the
// underlying message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return NewError(ErrServerError, "")
}
