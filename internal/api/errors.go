// Package api is the HTTP client for the dashboard's snapshot reads and
// best-effort notification writes.
package api

import (
	"errors"
	"fmt"
)

// Error is an error response from the server, carrying the HTTP status and
// the server's own error message when it sent one.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (%d)", e.Message, e.StatusCode)
}

// Reason returns the human-readable string a store should surface for err:
// the server's message when present, otherwise a generic one.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "request failed"
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == 404
}
