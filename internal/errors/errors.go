package errors

import (
	"errors"
	"fmt"
)

// Session failure taxonomy. None of these are retried locally; they abort
// the running session and surface to the caller.
var (
	// ErrAuthentication means no usable authorization token could be produced.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNetwork covers failures talking to the remote store (listing or download).
	ErrNetwork = errors.New("network failure")

	// ErrNoRemoteFile means the remote folder listing was empty.
	ErrNoRemoteFile = errors.New("no remote file available")

	// ErrQuery means the local database could not be opened or queried.
	ErrQuery = errors.New("query failed")

	// ErrInvalidConfig means required configuration is missing or malformed.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Mark attaches a sentinel to err so that errors.Is matches both the
// sentinel and the original cause.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
