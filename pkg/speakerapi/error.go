package speakerapi

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the backend.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"-"`

	// Status is the backend's "status" field, when present.
	Status string `json:"status"`

	// Message is the human-readable reason reported by the backend. It is
	// empty when the body carried none.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("speakerapi: %s (http=%d)", msg, e.HTTPStatus)
}

// IsNotFound returns true if the backend answered 404.
func (e *Error) IsNotFound() bool {
	return e.HTTPStatus == 404
}

// IsInvalidRequest returns true for 4xx responses.
func (e *Error) IsInvalidRequest() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

// IsServerError returns true for 5xx responses.
func (e *Error) IsServerError() bool {
	return e.HTTPStatus >= 500
}

// AsError extracts *Error from an error.
//
// Example:
//
//	if e, ok := speakerapi.AsError(err); ok {
//	    fmt.Println(e.Message)
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
