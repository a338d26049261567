// Package errs defines the error taxonomy shared by all services.
// Handlers map these onto the response envelope's status set.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArguments is client input validation, detected before any
	// backing-store call.
	ErrMissingArguments = errors.New("missing arguments")

	// ErrNotFound means a document, user, or share code is absent.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means the caller's access level is insufficient.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict means an update payload contains a field outside the
	// canonical schema, or a type mismatch on a known field.
	ErrConflict = errors.New("conflict")

	// ErrUpstream means a backing-store operation failed for reasons opaque
	// to this service. Never retried here.
	ErrUpstream = errors.New("upstream failure")
)

func MissingArguments(what string) error {
	return fmt.Errorf("%w: %s", ErrMissingArguments, what)
}

func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func PermissionDenied(what string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, what)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func Upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
