// Package outcome defines the success-or-typed-error result returned by every operation.
package outcome

import (
	"fmt"

	"github.com/storagelite/storagelite/pkg/errors"
)

// Outcome holds either a value or a *errors.StorageError, never both.
type Outcome[T any] struct {
	value T
	err   *errors.StorageError
}

// Success wraps a value.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failure wraps an error. A nil error is converted to an internal error so the
// outcome can never be an empty failure.
func Failure[T any](err *errors.StorageError) Outcome[T] {
	if err == nil {
		err = errors.NewError(errors.ErrCodeInternalError, "failure outcome without error")
	}
	return Outcome[T]{err: err}
}

// FromError converts an arbitrary error into a failure. Errors that are not
// StorageErrors become internal errors with err as the cause.
func FromError[T any](err error) Outcome[T] {
	if se, ok := errors.AsStorageError(err); ok {
		return Failure[T](se)
	}
	return Failure[T](errors.NewError(errors.ErrCodeInternalError, err.Error()).WithCause(err))
}

// Success reports whether the outcome carries a value.
func (o Outcome[T]) Success() bool {
	return o.err == nil
}

// Value returns the success value, or the zero value for a failure.
func (o Outcome[T]) Value() T {
	return o.value
}

// Err returns the failure, nil on success.
func (o Outcome[T]) Err() *errors.StorageError {
	return o.err
}

// Get returns the value and the failure as a Go error.
func (o Outcome[T]) Get() (T, error) {
	if o.err != nil {
		var zero T
		return zero, o.err
	}
	return o.value, nil
}

func (o Outcome[T]) String() string {
	if o.err != nil {
		return fmt.Sprintf("Failure(%v)", o.err)
	}
	return fmt.Sprintf("Success(%v)", o.value)
}

// Map transforms a success value, passing failures through untouched.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	if o.err != nil {
		return Failure[U](o.err)
	}
	return Success(fn(o.value))
}

// Void is the result type of operations that only have side effects.
type Void struct{}
