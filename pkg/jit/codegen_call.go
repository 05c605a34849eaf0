package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// emitCall: CALL / CONSTRUCT / EVAL dst callee start argc.
//
// start holds the receiver and the argc arguments follow it. The stub either
// finishes the call itself (native functions, eval) and returns the current
// frame with the result, or prepares a frame for compiled code and returns
// that frame, which is then entered natively.
func (c *Compiler) emitCall(id StubID, dst, callee, start bytecode.Register, argc uint32) {
	native, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RSI, callee)
	c.registerAddress(RDX, start)
	c.asm.MovRegImm32(RCX, argc)
	c.asm.MovRegReg(R8, RSP)
	c.ip(R9)
	c.callStub(id)
	c.asm.CmpRegReg(RAX, FrameReg)
	c.asm.J(CondNE, native)
	c.asm.MovRegReg(RAX, RDX)
	c.asm.Jmp(done)

	c.asm.Bind(native)
	c.asm.MovRegReg(FrameReg, RAX)
	c.asm.CallMem(FrameReg, FrameEntry)
	c.asm.MovRegMem64(FrameReg, RSP, 0)
	// The callee cut the register stack back to its argument base; keep
	// this frame's registers covered.
	c.asm.LeaRegMem(RCX, FrameReg, frameLimit(c.code))
	c.asm.MovRegMem64(RDX, ContextReg, ctxStackPointer)
	c.asm.CmpRegReg(RDX, RCX)
	c.asm.Cmovcc(CondB, RDX, RCX)
	c.asm.MovMemReg64(ContextReg, ctxStackPointer, RDX)
	if id == StubConstruct {
		// A constructor returning a non-object yields the receiver, which
		// the stub left in the start register.
		object := c.asm.NewLabel()
		c.emitIsObject(RAX, object)
		c.reload(RAX, start)
		c.asm.Bind(object)
	}
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitIsObject branches to yes when reg holds an object cell. Clobbers RCX.
func (c *Compiler) emitIsObject(reg Reg, yes Label) {
	no := c.asm.NewLabel()
	c.asm.TestRegReg(reg, reg)
	c.asm.J(CondE, no)
	c.asm.MovRegImm64(RCX, value.NumberMask|value.CellKind)
	c.asm.TestRegReg(reg, RCX)
	c.asm.J(CondE, yes)
	c.asm.Bind(no)
}

// emitPrepareDynamicCall: dst = function named name, looked up through the
// scope chain; the this register is set to its base object
func (c *Compiler) emitPrepareDynamicCall(dst, this bytecode.Register, name uint32) {
	c.frame(RSI)
	c.symbol(RDX, name)
	c.registerAddress(RCX, this)
	c.callStub(StubPrepareDynamicCall)
	c.storeResult(dst)
}
