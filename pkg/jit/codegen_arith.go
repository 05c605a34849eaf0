package jit

import (
	"math"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// guardInt32 branches to slow unless reg holds an int32.
func (c *Compiler) guardInt32(reg Reg, slow Label) {
	c.asm.CmpRegReg(reg, MaskReg)
	c.asm.J(CondB, slow)
}

// boxInt32 tags the zero-extended 32-bit result in reg.
func (c *Compiler) boxInt32(reg Reg) {
	c.asm.OrRegReg(reg, MaskReg)
}

// boxDouble converts the signed 64-bit integer in src to a double value in
// RAX. Clobbers RCX and X0.
func (c *Compiler) boxDouble(src Reg) {
	c.asm.Cvtsi2sd(X0, src)
	c.asm.MovqRegXmm(RAX, X0)
	c.asm.MovRegImm64(RCX, value.DoubleOffset)
	c.asm.AddRegReg(RAX, RCX)
}

// emitBinarySlow: RAX = binary stub(lhs, rhs), operands reread from the
// frame
func (c *Compiler) emitBinarySlow(op bytecode.Opcode, lhs, rhs bytecode.Register) {
	c.reload(RSI, lhs)
	c.reload(RDX, rhs)
	c.callStub(binaryStub(op))
}

// emitBinaryStub: dst = stub(lhs, rhs) with no inline path
func (c *Compiler) emitBinaryStub(op bytecode.Opcode, dst, lhs, rhs bytecode.Register) {
	c.load(RSI, lhs)
	c.load(RDX, rhs)
	c.callStub(binaryStub(op))
	c.storeResult(dst)
}

// emitArith: add, subtract, multiply. Int32 operands take the inline path;
// a 32-bit overflow is redone in 64 bits and boxed as a double.
func (c *Compiler) emitArith(op bytecode.Opcode, dst, lhs, rhs bytecode.Register) {
	slow, overflow, done := c.asm.NewLabel(), c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.MovRegReg32(RCX, RAX)
	switch op {
	case bytecode.OpBinaryAdd:
		c.asm.AddRegReg32(RCX, RDX)
	case bytecode.OpBinarySubtract:
		c.asm.SubRegReg32(RCX, RDX)
	case bytecode.OpBinaryMultiply:
		c.asm.IMulRegReg32(RCX, RDX)
	}
	c.asm.J(CondO, overflow)
	if op == bytecode.OpBinaryMultiply {
		// A zero product is -0 when either factor is negative.
		nonzero := c.asm.NewLabel()
		c.asm.TestRegReg32(RCX, RCX)
		c.asm.J(CondNE, nonzero)
		c.asm.MovRegReg32(R8, RAX)
		c.asm.OrRegReg32(R8, RDX)
		c.asm.J(CondS, slow)
		c.asm.Bind(nonzero)
	}
	c.asm.MovRegReg32(RAX, RCX)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(overflow)
	c.asm.MovsxdRegReg(RCX, RAX)
	c.asm.MovsxdRegReg(RDX, RDX)
	switch op {
	case bytecode.OpBinaryAdd:
		c.asm.AddRegReg(RCX, RDX)
	case bytecode.OpBinarySubtract:
		c.asm.SubRegReg(RCX, RDX)
	case bytecode.OpBinaryMultiply:
		c.asm.IMulRegReg(RCX, RDX)
	}
	c.boxDouble(RCX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(op, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitDivide: the inline path only produces exact int32 quotients. Zero
// divisors, -1 divisors, 0/negative (-0) and inexact results go to the
// stub.
func (c *Compiler) emitDivide(dst, lhs, rhs bytecode.Register) {
	slow, nonzero, done := c.asm.NewLabel(), c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.MovRegReg32(RCX, RDX)
	c.asm.TestRegReg32(RCX, RCX)
	c.asm.J(CondE, slow)
	c.asm.CmpRegImm32x32(RCX, -1)
	c.asm.J(CondE, slow)
	c.asm.TestRegReg32(RAX, RAX)
	c.asm.J(CondNE, nonzero)
	c.asm.TestRegReg32(RCX, RCX)
	c.asm.J(CondS, slow)
	c.asm.Bind(nonzero)
	c.asm.Cdq()
	c.asm.IDiv32(RCX)
	c.asm.TestRegReg32(RDX, RDX)
	c.asm.J(CondNE, slow)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(bytecode.OpBinaryDivide, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitModulo: inline only for a non-negative dividend and a positive
// divisor, where the int32 remainder has the right sign.
func (c *Compiler) emitModulo(dst, lhs, rhs bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.TestRegReg32(RAX, RAX)
	c.asm.J(CondS, slow)
	c.asm.TestRegReg32(RDX, RDX)
	c.asm.J(CondLE, slow)
	c.asm.MovRegReg32(RCX, RDX)
	c.asm.Cdq()
	c.asm.IDiv32(RCX)
	c.asm.MovRegReg32(RAX, RDX)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(bytecode.OpBinaryModulo, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitShift: <<, >>, >>>. The count is masked to 5 bits by the hardware,
// matching the language. An unsigned result with the top bit set does not
// fit int32 and is boxed as a double.
func (c *Compiler) emitShift(op bytecode.Opcode, dst, lhs, rhs bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.MovRegReg32(RCX, RDX)
	switch op {
	case bytecode.OpBinaryLShift:
		c.asm.Shl32RegCL(RAX)
	case bytecode.OpBinaryRShift:
		c.asm.Sar32RegCL(RAX)
	case bytecode.OpBinaryRShiftLogical:
		c.asm.Shr32RegCL(RAX)
	}
	if op == bytecode.OpBinaryRShiftLogical {
		small := c.asm.NewLabel()
		c.asm.TestRegReg32(RAX, RAX)
		c.asm.J(CondNS, small)
		c.boxDouble(RAX)
		c.asm.Jmp(done)
		c.asm.Bind(small)
	}
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(op, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitBitwise: &, ^, |. And/or of two int32 values keep the tag, so they
// run on the whole word.
func (c *Compiler) emitBitwise(op bytecode.Opcode, dst, lhs, rhs bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	switch op {
	case bytecode.OpBinaryBitAnd:
		c.asm.AndRegReg(RAX, RDX)
	case bytecode.OpBinaryBitOr:
		c.asm.OrRegReg(RAX, RDX)
	case bytecode.OpBinaryBitXor:
		c.asm.XorRegReg32(RAX, RDX)
		c.boxInt32(RAX)
	}
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(op, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitToNumber: dst = +src; numbers pass through untouched
func (c *Compiler) emitToNumber(id StubID, dst, src bytecode.Register) {
	done := c.asm.NewLabel()
	c.load(RAX, src)
	c.asm.TestRegReg(RAX, MaskReg)
	c.asm.J(CondNE, done)
	c.asm.MovRegReg(RSI, RAX)
	c.callStub(id)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitNegate: dst = -src. Zero (-0) and INT32_MIN go to the stub.
func (c *Compiler) emitNegate(dst, src bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RAX, src)
	c.guardInt32(RAX, slow)
	c.asm.TestRegReg32(RAX, RAX)
	c.asm.J(CondE, slow)
	c.asm.CmpRegImm32x32(RAX, math.MinInt32)
	c.asm.J(CondE, slow)
	c.asm.NegReg32(RAX)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.reload(RSI, src)
	c.callStub(StubUnaryNegative)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitNot: dst = !src; booleans flip inline
func (c *Compiler) emitNot(dst, src bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RAX, src)
	c.asm.MovRegReg(RCX, RAX)
	c.asm.AndRegImm32(RCX, -2)
	c.asm.CmpRegImm32(RCX, int32(value.False))
	c.asm.J(CondNE, slow)
	c.asm.XorRegImm32(RAX, 1)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.reload(RSI, src)
	c.callStub(StubUnaryNot)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitBitNot: dst = ~src
func (c *Compiler) emitBitNot(dst, src bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RAX, src)
	c.guardInt32(RAX, slow)
	c.asm.NotReg32(RAX)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.reload(RSI, src)
	c.callStub(StubUnaryBitNot)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitUnaryStub: dst = stub(src)
func (c *Compiler) emitUnaryStub(id StubID, dst, src bytecode.Register) {
	c.load(RSI, src)
	c.callStub(id)
	c.storeResult(dst)
}

// emitStep adds delta to the int32 in RAX, leaving the boxed result in RAX.
// Jumps to done on both the int32 and the overflow path.
func (c *Compiler) emitStep(delta int32, done Label) {
	overflow := c.asm.NewLabel()
	c.asm.MovRegReg32(RCX, RAX)
	c.asm.AddRegImm32x32(RCX, delta)
	c.asm.J(CondO, overflow)
	c.asm.MovRegReg32(RAX, RCX)
	c.boxInt32(RAX)
	c.asm.Jmp(done)

	c.asm.Bind(overflow)
	c.asm.MovsxdRegReg(RCX, RAX)
	c.asm.AddRegImm32(RCX, delta)
	c.boxDouble(RCX)
	c.asm.Jmp(done)
}

// emitIncrement: ++r / --r in place
func (c *Compiler) emitIncrement(decrement bool, r bytecode.Register) {
	delta, id := int32(1), StubIncrement
	if decrement {
		delta, id = -1, StubDecrement
	}
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RAX, r)
	c.guardInt32(RAX, slow)
	c.emitStep(delta, done)

	c.asm.Bind(slow)
	c.reload(RSI, r)
	c.callStub(id)
	c.asm.Bind(done)
	c.storeResult(r)
}

// emitPostfixIncrement: dst = +src; src = dst ± 1
func (c *Compiler) emitPostfixIncrement(decrement bool, dst, src bytecode.Register) {
	if dst == src {
		// x = x++ leaves x holding its old numeric value.
		c.emitToNumber(StubToNumber, dst, src)
		return
	}
	delta, id := int32(1), StubIncrement
	if decrement {
		delta, id = -1, StubDecrement
	}
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.load(RAX, src)
	c.guardInt32(RAX, slow)
	c.store(dst, RAX)
	c.emitStep(delta, done)

	c.asm.Bind(slow)
	c.reload(RSI, src)
	c.callStub(StubToNumber)
	c.store(dst, RAX)
	c.asm.MovRegReg(RSI, RAX)
	c.callStub(id)
	c.asm.Bind(done)
	c.storeResult(src)
}

// emitToPrimitiveAndToString: strings pass through untouched
func (c *Compiler) emitToPrimitiveAndToString(dst, src bytecode.Register) {
	done := c.asm.NewLabel()
	c.load(RAX, src)
	c.asm.MovRegImm64(RCX, value.NumberMask|value.CellKind)
	c.asm.AndRegReg(RCX, RAX)
	c.asm.CmpRegImm32(RCX, value.KindString)
	c.asm.J(CondE, done)
	c.asm.MovRegReg(RSI, RAX)
	c.callStub(StubToPrimitiveAndToString)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitConcat: dst = string concatenation of count registers from start
func (c *Compiler) emitConcat(dst, start bytecode.Register, count uint32) {
	c.registerAddress(RSI, start)
	c.asm.MovRegImm32(RDX, count)
	c.callStub(StubConcat)
	c.storeResult(dst)
}
