//go:build !(linux && amd64)

package jit

import (
	"errors"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// ErrUnsupported is returned by NewMachine on platforms without a native
// backend. Compiling and linking into a CodeAllocator still work.
var ErrUnsupported = errors.New("native execution requires linux/amd64")

// Machine is unavailable on this platform.
type Machine struct{}

func NewMachine(cfg MachineConfig, handler StubHandler) (*Machine, error) {
	return nil, ErrUnsupported
}

func (m *Machine) Close() error                                { return nil }
func (m *Machine) Compile(code *bytecode.Code) (*Image, error) { return nil, ErrUnsupported }
func (m *Machine) Code(id uint32) *bytecode.Code               { return nil }
func (m *Machine) Frame() Frame                                { return 0 }
func (m *Machine) Exception() value.Value                      { return value.Undefined }
func (m *Machine) StackPointer() uintptr                       { return 0 }
func (m *Machine) NativeStackAvailable(sp uintptr) bool        { return false }
func (m *Machine) PushFrame(prev Frame, call Call) (Frame, error) {
	return 0, ErrUnsupported
}
func (m *Machine) Run(code *bytecode.Code, this value.Value, args ...value.Value) (value.Value, error) {
	return 0, ErrUnsupported
}
func (m *Machine) Invoke(call Call) (value.Value, error) { return 0, ErrUnsupported }
