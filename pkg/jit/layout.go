package jit

import (
	"unsafe"

	"jsjit/pkg/bytecode"
)

// Register roles in compiled code.
//
//	R13  machine context (constant for the whole run)
//	R12  current frame
//	R15  value.NumberMask, the int32 tag
//	RAX  accumulator; holds the last-used register inside a basic block
//	RSI, RDX, RCX, R8, R9  stub arguments after RDI = context
//
// Every compiled function keeps one reserved slot at the top of its native
// stack frame holding its own frame pointer, so the native stack alternates
// [return address][frame] all the way down to the entry thunk.
const (
	ContextReg = R13
	FrameReg   = R12
	MaskReg    = R15
)

var stubArgRegs = [...]Reg{RSI, RDX, RCX, R8, R9}

// Context is the per-machine block shared between Go and compiled code. It
// lives in mmap'd memory; the offsets below are used by emitted code and by
// the trampolines in package asm.
type Context struct {
	StubID       uint64
	Args         [5]uint64
	NativeSP     uint64
	GoSP         uint64
	GoBP         uint64
	SavedRBX     uint64
	SavedRBP     uint64
	SavedR12     uint64
	SavedR14     uint64
	SavedR15     uint64
	StackPointer uint64
	StackLimit   uint64
	Result       uint64
	Exception    uint64
}

const (
	ctxStubID       = int32(unsafe.Offsetof(Context{}.StubID))
	ctxArgs         = int32(unsafe.Offsetof(Context{}.Args))
	ctxNativeSP     = int32(unsafe.Offsetof(Context{}.NativeSP))
	ctxGoSP         = int32(unsafe.Offsetof(Context{}.GoSP))
	ctxGoBP         = int32(unsafe.Offsetof(Context{}.GoBP))
	ctxSavedRBX     = int32(unsafe.Offsetof(Context{}.SavedRBX))
	ctxSavedRBP     = int32(unsafe.Offsetof(Context{}.SavedRBP))
	ctxSavedR12     = int32(unsafe.Offsetof(Context{}.SavedR12))
	ctxSavedR14     = int32(unsafe.Offsetof(Context{}.SavedR14))
	ctxSavedR15     = int32(unsafe.Offsetof(Context{}.SavedR15))
	ctxStackPointer = int32(unsafe.Offsetof(Context{}.StackPointer))
	ctxStackLimit   = int32(unsafe.Offsetof(Context{}.StackLimit))
	ctxResult       = int32(unsafe.Offsetof(Context{}.Result))
	ctxException    = int32(unsafe.Offsetof(Context{}.Exception))

	ContextSize = int(unsafe.Sizeof(Context{}))
)

// Frame header, at the frame pointer. Registers follow the header; the
// receiver and arguments sit just below it: this at -8, argument i at
// -16-8*i.
const (
	FramePrev       = 0  // caller frame, 0 for the outermost frame
	FrameCode       = 8  // code ID
	FrameEntry      = 16 // native entry of the code
	FrameCallee     = 24 // callee function value
	FrameArgc       = 32 // number of arguments actually passed
	FrameArgBase    = 40 // stack pointer to restore when the frame returns
	FrameLexEnv     = 48 // lexical environment handle
	FrameVarEnv     = 56 // variable environment handle
	FrameFlags      = 64
	FrameHeaderSize = 72
)

// Frame flags.
const (
	FrameConstruct = 1 << iota
)

// Exit status returned to Go by the trampolines.
const (
	ExitReturn = 0
	ExitStub   = 1
)

// registerOffset returns the displacement of register r from the frame
// pointer.
func registerOffset(r bytecode.Register) int32 {
	assert(r != bytecode.InvalidRegister, "invalid register operand")
	if r < 0 {
		return int32(r) * 8
	}
	return FrameHeaderSize + int32(r)*8
}

// frameLimit is the first byte past the registers of a frame running c.
func frameLimit(c *bytecode.Code) int32 {
	return FrameHeaderSize + int32(c.RegisterCount)*8
}

// InstructionPointer names one instruction of one code for stubs that keep
// per-site caches.
func InstructionPointer(code *bytecode.Code, offset uint32) uint64 {
	return uint64(code.ID)<<32 | uint64(offset)
}

// SymbolRef names entry i of a code's Names (or Codes) table.
func SymbolRef(code *bytecode.Code, index uint32) uint64 {
	return uint64(code.ID)<<32 | uint64(index)
}

// SplitRef unpacks an InstructionPointer or SymbolRef.
func SplitRef(ref uint64) (codeID uint32, index uint32) {
	return uint32(ref >> 32), uint32(ref)
}
