package jit

import (
	"unsafe"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// Frame is the address of a frame header in the register stack.
type Frame uintptr

func (f Frame) word(off int32) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(f) + uintptr(int64(off))))
}

// Register reads register r.
func (f Frame) Register(r bytecode.Register) value.Value {
	return value.Value(*f.word(registerOffset(r)))
}

// SetRegister writes register r.
func (f Frame) SetRegister(r bytecode.Register, v value.Value) {
	*f.word(registerOffset(r)) = uint64(v)
}

// RegisterAddress returns the address of register r, the form compiled code
// passes for register windows.
func (f Frame) RegisterAddress(r bytecode.Register) uintptr {
	return uintptr(f) + uintptr(int64(registerOffset(r)))
}

func (f Frame) This() value.Value       { return f.Register(bytecode.ThisRegister) }
func (f Frame) Prev() Frame             { return Frame(*f.word(FramePrev)) }
func (f Frame) CodeID() uint32          { return uint32(*f.word(FrameCode)) }
func (f Frame) Callee() value.Value     { return value.Value(*f.word(FrameCallee)) }
func (f Frame) Argc() int               { return int(*f.word(FrameArgc)) }
func (f Frame) ArgBase() uintptr        { return uintptr(*f.word(FrameArgBase)) }
func (f Frame) LexicalEnv() uint64      { return *f.word(FrameLexEnv) }
func (f Frame) VariableEnv() uint64     { return *f.word(FrameVarEnv) }
func (f Frame) IsConstruct() bool       { return *f.word(FrameFlags)&FrameConstruct != 0 }
func (f Frame) SetLexicalEnv(e uint64)  { *f.word(FrameLexEnv) = e }
func (f Frame) SetVariableEnv(e uint64) { *f.word(FrameVarEnv) = e }

// Arg returns argument i, or undefined past the passed count.
func (f Frame) Arg(i int) value.Value {
	if i >= f.Argc() {
		return value.Undefined
	}
	return f.Register(bytecode.ArgRegister(i))
}

// Window reads count consecutive values starting at addr, as passed by
// CONCAT and INIT_VECTOR_ARRAY_ELEMENT.
func Window(addr uintptr, count int) []value.Value {
	if count == 0 {
		return nil
	}
	src := unsafe.Slice((*value.Value)(unsafe.Pointer(addr)), count)
	out := make([]value.Value, count)
	copy(out, src)
	return out
}

// Store writes v to the register slot at addr. Call stubs use it to update
// the receiver slot they were passed.
func Store(addr uintptr, v value.Value) {
	*(*value.Value)(unsafe.Pointer(addr)) = v
}
