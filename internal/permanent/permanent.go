// Package permanent marks errors that retrying cannot fix, such as 4xx answers
// of the alerting backend or requests that cannot be built.
package permanent

import (
	"errors"
	"fmt"
)

// Error wraps a non-retryable failure.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Mark wraps err as non-retryable; nil stays nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// Errorf formats a non-retryable error; %w verbs keep their chain.
func Errorf(format string, args ...any) error {
	return Mark(fmt.Errorf(format, args...))
}

// Is reports whether any error in the chain is marked non-retryable.
func Is(err error) bool {
	var marked *Error
	return errors.As(err, &marked)
}
