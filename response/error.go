package response

import (
	"fmt"
	"net/http"
)

// Error is the canonical shape of an API error. Message carries the
// user-facing summary, Messages the details, and Result an optional
// structured payload (for example the entitlement decision on a 402).
type Error struct {
	StatusCode int
	Message    string
	Messages   []string
	Result     interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// WithMessage replaces the user-facing summary
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// AddMessages appends detail lines shown to the user
func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

// WithResult attaches a structured payload to the error response
func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func newError(status int) *Error {
	return &Error{
		StatusCode: status,
		Message:    http.StatusText(status),
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

func ErrUnexpected() *Error {
	return newError(http.StatusInternalServerError).
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return newError(http.StatusBadRequest)
}

func ErrUnauthorized() *Error {
	return newError(http.StatusUnauthorized)
}

func ErrNotFound() *Error {
	return newError(http.StatusNotFound).
		WithMessage("Requested resources not found")
}

func ErrMethodNotAllowed() *Error {
	return newError(http.StatusMethodNotAllowed)
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrVerifyToken() *Error {
	return ErrUnexpected().AddMessages("Unable to verify login token")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}

func ErrQuotaExceeded() *Error {
	return newError(http.StatusPaymentRequired).
		WithMessage("Monthly quota exceeded")
}
