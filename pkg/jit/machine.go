package jit

import (
	"errors"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// DefaultCodeSize is the executable memory mapped by default.
const DefaultCodeSize = 16 * 1024 * 1024

// MachineConfig sizes the memory a Machine maps.
type MachineConfig struct {
	CodeSize        int // executable memory, shared by every compiled image
	StackSize       int // register stack
	NativeStackSize int // stack compiled code runs on
	Session         Options
}

// DefaultMachineConfig returns the configuration used for zero fields.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		CodeSize:        DefaultCodeSize,
		StackSize:       8 << 20,
		NativeStackSize: 4 << 20,
		Session:         DefaultOptions(),
	}
}

// Call describes a frame to set up: the code to run, its callee value, the
// receiver and arguments, and the environment it starts in.
type Call struct {
	Code      *bytecode.Code
	Callee    value.Value
	This      value.Value
	Args      []value.Value
	Env       uint64
	Construct bool
}

// ErrStackOverflow is returned when the register stack or the native stack
// is exhausted.
var ErrStackOverflow = errors.New("stack overflow")

// findHandler returns the first handler of code whose native range holds
// pc. Handlers are listed innermost first.
func findHandler(code *bytecode.Code, pc uintptr) *bytecode.Handler {
	for i := range code.Handlers {
		h := &code.Handlers[i]
		if h.NativeBegin <= pc && pc < h.NativeEnd {
			return h
		}
	}
	return nil
}
