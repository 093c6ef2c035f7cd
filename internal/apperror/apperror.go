// Package apperror carries the domain error taxonomy from the point of
// detection to the HTTP boundary, where the status code becomes the
// response status and the message the response body.
package apperror

import (
	"errors"
	"net/http"
)

type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func BadRequest(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: http.StatusForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: http.StatusNotFound, Message: message}
}

func PreconditionFailed(message string) *Error {
	return &Error{Code: http.StatusPreconditionFailed, Message: message}
}

func Timeout(message string) *Error {
	return &Error{Code: http.StatusServiceUnavailable, Message: message}
}

// From unwraps err into an *Error, reporting whether it is one.
func From(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
