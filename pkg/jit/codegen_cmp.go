package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// compareCond maps a comparison opcode to the signed condition that holds
// when the comparison is true for two int32 operands.
func compareCond(op bytecode.Opcode) Cond {
	switch op {
	case bytecode.OpBinaryLT:
		return CondL
	case bytecode.OpBinaryLTE:
		return CondLE
	case bytecode.OpBinaryGT:
		return CondG
	case bytecode.OpBinaryGTE:
		return CondGE
	case bytecode.OpBinaryEQ, bytecode.OpBinaryStrictEQ:
		return CondE
	case bytecode.OpBinaryNE, bytecode.OpBinaryStrictNE:
		return CondNE
	}
	assert(false, "%s is not a comparison", op)
	return 0
}

// emitCompare: dst = lhs <op> rhs as a boolean value
func (c *Compiler) emitCompare(op bytecode.Opcode, dst, lhs, rhs bytecode.Register) {
	slow, done := c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.CmpRegReg32(RAX, RDX)
	c.asm.Setcc(compareCond(op), RAX)
	c.asm.MovzxRegReg8(RAX, RAX)
	c.asm.OrRegImm32(RAX, int32(value.False))
	c.asm.Jmp(done)

	c.asm.Bind(slow)
	c.emitBinarySlow(op, lhs, rhs)
	c.asm.Bind(done)
	c.storeResult(dst)
}

// emitCompareBranch: IF_TRUE_BINARY_* / IF_FALSE_BINARY_*. The int32 path
// branches on the flags directly and never materialises a boolean; the
// slow path compares the stub's boolean with true.
func (c *Compiler) emitCompareBranch(op bytecode.Opcode, lhs, rhs bytecode.Register, target Label) {
	cmp, jumpIfTrue := op.FusedComparison()
	cond := compareCond(cmp)
	if !jumpIfTrue {
		cond = cond.Invert()
	}
	slow, next := c.asm.NewLabel(), c.asm.NewLabel()
	c.loadPair(lhs, rhs)
	c.guardInt32(RAX, slow)
	c.guardInt32(RDX, slow)

	c.asm.CmpRegReg32(RAX, RDX)
	c.asm.J(cond, target)
	c.asm.Jmp(next)

	c.asm.Bind(slow)
	c.emitBinarySlow(cmp, lhs, rhs)
	c.asm.CmpRegImm32(RAX, int32(value.True))
	if jumpIfTrue {
		c.asm.J(CondE, target)
	} else {
		c.asm.J(CondNE, target)
	}
	c.asm.Bind(next)
}
