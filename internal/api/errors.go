package api

import (
	"errors"
	"fmt"

	"github.com/dukerupert/tasksparkle/internal/tunnel"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	// Message is the backend's error text.
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// ConnectivityError means the backend could not be reached, or something
// between client and backend (a tunnel or proxy) answered in its place.
type ConnectivityError struct {
	// Diagnostic is a human-readable remediation hint.
	Diagnostic string
	// Tunnel is set when a tunnel or HTML page was detected in the body.
	Tunnel *tunnel.Diagnosis
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Diagnostic, e.Err)
	}
	return e.Diagnostic
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// MalformedResponseError means a response that should have been JSON
// could not be decoded.
type MalformedResponseError struct {
	StatusCode int
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response (status %d): %v", e.StatusCode, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err should be presented to the user as a
// connectivity problem. Malformed responses count: from the user's side
// they are indistinguishable from a broken tunnel.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	var me *MalformedResponseError
	return errors.As(err, &ce) || errors.As(err, &me)
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
