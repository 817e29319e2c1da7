package errors

import (
	stderr "errors"
)

// Re-exports of the standard library helpers so callers can depend on
// a single errors package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderr.Unwrap(err)
}
