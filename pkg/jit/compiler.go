package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// Compiler emits one program into the session buffer.
//
// RAX doubles as a one-entry cache: last names the register whose value RAX
// is known to hold. The cache only lives within a basic block; it is dropped
// at every jump target and after anything that may leave RAX or the frame
// out of step.
type Compiler struct {
	s     *Session
	asm   *Assembler
	code  *bytecode.Code
	jumps JumpTable

	offset uint32 // current instruction
	last   bytecode.Register
	next   bytecode.Register // cache state once the current instruction is done
}

func newCompiler(s *Session, code *bytecode.Code) *Compiler {
	return &Compiler{
		s:    s,
		asm:  s.asm,
		code: code,
		last: bytecode.InvalidRegister,
		next: bytecode.InvalidRegister,
	}
}

func (c *Compiler) compile() {
	c.jumps = ScanJumpTargets(c.code, c.asm)

	entry := c.asm.NewLabel()
	c.asm.Align(16)
	c.asm.Bind(entry)
	c.s.entries[c.code] = entry
	// The reserved slot: this function's frame, read back after calls and
	// by the unwinder.
	c.asm.Push(FrameReg)

	for cur := bytecode.NewCursor(c.code.Data); !cur.Done(); cur.Next() {
		c.offset = cur.Offset()
		if !c.splitBlock(c.offset) {
			c.last = bytecode.InvalidRegister
		}
		if c.s.trace != nil {
			c.s.trace(c.code, c.offset, cur.Opcode(), c.last)
		}
		c.next = bytecode.InvalidRegister
		c.emitInstruction(&cur)
		c.last = c.next
	}
	c.offset = uint32(len(c.code.Data))
	c.splitBlock(c.offset)
	// Falling off the end returns undefined.
	c.asm.MovRegImm32(RAX, uint32(value.Undefined))
	c.emitReturnRAX()
}

// splitBlock binds the label of offset if it is a jump target and records
// handler boundaries. It returns true when offset is not a jump target,
// that is, when control can only arrive from the previous instruction.
func (c *Compiler) splitBlock(offset uint32) bool {
	target, ok := c.jumps[offset]
	if !ok {
		return true
	}
	c.asm.Bind(target.Label)
	if target.Handled {
		c.s.handlerLinks[handlerKey{c.code, offset}] = c.asm.Offset()
	}
	return false
}

// label returns the label of a scanned jump target.
func (c *Compiler) label(target uint32) Label {
	t, ok := c.jumps[target]
	assert(ok, "%s: jump target %d was not scanned", c.code.Name, target)
	return t.Label
}

// load puts bytecode register r into dst, reusing RAX when it already holds
// r. Loading into RAX makes RAX hold r.
func (c *Compiler) load(dst Reg, r bytecode.Register) {
	if r == c.last {
		if dst != RAX {
			c.asm.MovRegReg(dst, RAX)
		}
		return
	}
	c.asm.MovRegMem64(dst, FrameReg, registerOffset(r))
	if dst == RAX {
		c.last = r
	}
}

// loadPair puts lhs in RAX and rhs in RDX.
func (c *Compiler) loadPair(lhs, rhs bytecode.Register) {
	if rhs == c.last && lhs != c.last {
		c.asm.MovRegReg(RDX, RAX)
		c.load(RAX, lhs)
		return
	}
	c.load(RAX, lhs)
	c.load(RDX, rhs)
}

// reload reads r from the frame, ignoring the cache. Slow paths use it
// since fast paths may have clobbered RAX before branching to them.
func (c *Compiler) reload(dst Reg, r bytecode.Register) {
	c.asm.MovRegMem64(dst, FrameReg, registerOffset(r))
}

// store writes src to register r. Frame memory is always current; the
// cache only saves loads.
func (c *Compiler) store(r bytecode.Register, src Reg) {
	c.asm.MovMemReg64(FrameReg, registerOffset(r), src)
}

// storeResult stores RAX to r and records that RAX holds r afterwards.
func (c *Compiler) storeResult(r bytecode.Register) {
	c.store(r, RAX)
	c.next = r
}

// clobber forgets the cached register.
func (c *Compiler) clobber() {
	c.last = bytecode.InvalidRegister
}

// callStub calls stub id through the stub thunk. Arguments must already be
// in place; the result is in RAX (and RDX for call-shaped stubs).
func (c *Compiler) callStub(id StubID) {
	c.asm.MovRegReg(RDI, ContextReg)
	c.asm.MovRegImm32(RAX, uint32(id))
	c.asm.Call(c.s.stubThunk)
	c.clobber()
}

// callStubNoReturn calls a stub that always throws.
func (c *Compiler) callStubNoReturn(id StubID) {
	c.callStub(id)
	c.asm.Ud2()
}

// ip loads the current instruction pointer into reg.
func (c *Compiler) ip(reg Reg) {
	c.asm.MovRegValue(reg, InstructionPointer(c.code, c.offset))
}

// symbol loads a reference to name index into reg.
func (c *Compiler) symbol(reg Reg, index uint32) {
	assert(int(index) < len(c.code.Names), "%s: name %d out of range", c.code.Name, index)
	c.asm.MovRegValue(reg, SymbolRef(c.code, index))
}

// frame loads the current frame pointer into reg.
func (c *Compiler) frame(reg Reg) {
	c.asm.MovRegReg(reg, FrameReg)
}

// registerAddress loads the address of register r into reg.
func (c *Compiler) registerAddress(reg Reg, r bytecode.Register) {
	c.asm.LeaRegMem(reg, FrameReg, registerOffset(r))
}

// constant returns boxed constant k.
func (c *Compiler) constant(k uint32) value.Value {
	assert(int(k) < len(c.code.Pool), "%s: constant %d not prepared (pool has %d)", c.code.Name, k, len(c.code.Pool))
	return c.code.Pool[k]
}
