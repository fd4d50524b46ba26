// Package hibana provides a Go client for the Hibana Spark event-log
// analysis API.
package hibana

import (
	"errors"
	"fmt"
)

// Error represents an error from the Hibana API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("hibana: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsBadRequest returns true if the error is a 400.
func IsBadRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsPayloadTooLarge returns true if the error is a 413.
func IsPayloadTooLarge(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 413
	}
	return false
}

// IsUnusableInput returns true if the error is a 422, meaning the
// submitted event log contained no usable events.
func IsUnusableInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 422
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
