package client

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response from an upstream service. It is never
// retried.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

// Error includes the upstream status and body.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// TransportError means the request never produced a response: dial failure,
// reset connection, timeout.
type TransportError struct {
	Service string
	Op      string
	Err     error
}

// Error names the upstream and the failed operation.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the network error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
