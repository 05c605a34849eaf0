package jit

import (
	"jsjit/pkg/errors"
)

// assert panics with an *errors.InvariantError when a producer contract is
// broken. Session.Compile converts the panic back into an error.
func assert(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Invariantf(format, args...))
	}
}
