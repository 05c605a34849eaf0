package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// emitReturnRAX returns RAX to the caller: the register stack is cut back
// to the frame's argument base, the reserved slot popped and the native
// frame left.
func (c *Compiler) emitReturnRAX() {
	c.asm.MovRegMem64(RCX, FrameReg, FrameArgBase)
	c.asm.MovMemReg64(ContextReg, ctxStackPointer, RCX)
	c.asm.Pop(RCX)
	c.asm.Ret()
}

// emitConditionalJump: IF_TRUE / IF_FALSE. Booleans, int32 zero, other
// int32 values, null and undefined are decided inline; everything else asks
// the to-boolean stub.
func (c *Compiler) emitConditionalJump(cond bytecode.Register, target Label, jumpIfTrue bool) {
	next := c.asm.NewLabel()
	truthy, falsy := next, target
	if jumpIfTrue {
		truthy, falsy = target, next
	}
	c.load(RAX, cond)
	c.asm.CmpRegImm32(RAX, int32(value.False))
	c.asm.J(CondE, falsy)
	c.asm.CmpRegImm32(RAX, int32(value.True))
	c.asm.J(CondE, truthy)
	c.asm.CmpRegReg(RAX, MaskReg) // int32 0
	c.asm.J(CondE, falsy)
	c.asm.J(CondA, truthy)
	c.asm.MovRegReg(RCX, RAX)
	c.asm.AndRegImm32(RCX, ^int32(value.TagUndefined))
	c.asm.CmpRegImm32(RCX, int32(value.Null))
	c.asm.J(CondE, falsy)

	c.asm.MovRegReg(RSI, RAX)
	c.callStub(StubToBoolean)
	c.asm.CmpRegImm32(RAX, int32(value.True))
	c.asm.J(CondE, truthy)
	if falsy != next {
		c.asm.Jmp(falsy)
	}
	c.asm.Bind(next)
}

// emitJumpSubroutine enters a finally block. The resume address is stored
// in the jump register disguised as a double so that the runtime treats it
// as an ordinary value; the flag register says "resume".
func (c *Compiler) emitJumpSubroutine(jump, flag bytecode.Register, target Label) {
	resume := c.asm.NewLabel()
	site := c.asm.MovRegAddress(RAX)
	c.s.addresses[site] = resume
	c.store(jump, RAX)
	c.asm.MovRegValue(RCX, uint64(value.Int32(bytecode.FinallyResume)))
	c.store(flag, RCX)
	c.asm.Jmp(target)
	// EncodeAddress needs an even address.
	c.asm.Align(4)
	c.asm.Bind(resume)
}

// emitReturnSubroutine leaves a finally block: back to the stored resume
// address, or rethrow the stored value when the block was entered by an
// exception.
func (c *Compiler) emitReturnSubroutine(jump, flag bytecode.Register) {
	rethrow := c.asm.NewLabel()
	c.reload(RCX, flag)
	c.asm.MovRegValue(RDX, uint64(value.Int32(bytecode.FinallyResume)))
	c.asm.CmpRegReg(RCX, RDX)
	c.asm.J(CondNE, rethrow)
	c.reload(RAX, jump)
	c.emitDecodeAddress(RAX)
	c.asm.JmpReg(RAX)

	c.asm.Bind(rethrow)
	c.reload(RSI, jump)
	c.callStubNoReturn(StubThrow)
}

// emitDecodeAddress is the inverse of value.EncodeAddress.
func (c *Compiler) emitDecodeAddress(reg Reg) {
	c.asm.RolRegImm8(reg, value.AddressRotation)
	c.asm.AndRegImm32(reg, -2)
}

// emitForInSetup: iterator = enumerate(src), or skip the loop when src is
// null or undefined
func (c *Compiler) emitForInSetup(iterator, enumerable bytecode.Register, end Label) {
	c.load(RAX, enumerable)
	c.asm.MovRegReg(RCX, RAX)
	c.asm.AndRegImm32(RCX, ^int32(value.TagUndefined))
	c.asm.CmpRegImm32(RCX, int32(value.Null))
	c.asm.J(CondE, end)
	c.asm.MovRegReg(RSI, RAX)
	c.callStub(StubForInSetup)
	c.storeResult(iterator)
}

// emitForInEnumerate: dst = next key, or leave the loop when the iterator
// returns empty
func (c *Compiler) emitForInEnumerate(dst, iterator bytecode.Register, end Label) {
	c.load(RSI, iterator)
	c.callStub(StubForInEnumerate)
	c.asm.TestRegReg(RAX, RAX)
	c.asm.J(CondE, end)
	c.storeResult(dst)
}
