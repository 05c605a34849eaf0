package errors

import (
	"fmt"
)

// InvariantError reports a producer contract violation detected while
// compiling: a jump outside the program, a missing label, an unknown opcode.
type InvariantError struct {
	Message string
	Cause   error
}

func (e *InvariantError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InvariantError) Unwrap() error {
	return e.Cause
}

// IsInvariantError checks if an error is an invariant error
func IsInvariantError(err error) bool {
	for err != nil {
		if _, ok := err.(*InvariantError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// WrapInvariant wraps an existing error as an invariant error
func WrapInvariant(err error, message string) *InvariantError {
	return &InvariantError{
		Message: message,
		Cause:   err,
	}
}

// Invariantf creates a new invariant error with formatted message
func Invariantf(format string, args ...interface{}) *InvariantError {
	return &InvariantError{
		Message: fmt.Sprintf(format, args...),
	}
}

// Recover converts a panic carrying an *InvariantError into a returned error.
// Other panics are re-raised. Use as: defer errors.Recover(&err).
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*err = ie
		return
	}
	panic(r)
}
