package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// incrementMode encodes an INCREMENT/DECREMENT/POSTFIX_* opcode relative to
// the first opcode of its family for the *Increment* stubs.
func (c *Compiler) incrementMode(op, family bytecode.Opcode) uint32 {
	k := op - family
	assert(k < 4, "%s is not in the %s family", op, family)
	var mode uint32
	if k&1 != 0 {
		mode |= IncrementDecrement
	}
	if k&2 != 0 {
		mode |= IncrementPostfix
	}
	if c.code.Strict {
		mode |= IncrementStrict
	}
	return mode
}

// emitNameStub: dst = stub(name) or stub(frame, name)
func (c *Compiler) emitNameStub(id StubID, dst bytecode.Register, name uint32, withFrame bool) {
	if withFrame {
		c.frame(RSI)
		c.symbol(RDX, name)
	} else {
		c.symbol(RSI, name)
	}
	c.callStub(id)
	c.storeResult(dst)
}

func (c *Compiler) emitLoadGlobal(dst bytecode.Register, name uint32) {
	c.symbol(RSI, name)
	c.ip(RDX)
	c.callStub(StubLoadGlobal)
	c.storeResult(dst)
}

func (c *Compiler) emitStoreGlobal(src bytecode.Register, name uint32) {
	c.symbol(RSI, name)
	c.load(RDX, src)
	c.ip(RCX)
	c.callStub(strictStub(c.code.Strict, StubStoreGlobal, StubStoreGlobalStrict))
}

func (c *Compiler) emitIncrementGlobal(op bytecode.Opcode, dst bytecode.Register, name uint32) {
	c.symbol(RSI, name)
	c.asm.MovRegImm32(RDX, c.incrementMode(op, bytecode.OpIncrementGlobal))
	c.callStub(StubIncrementGlobal)
	c.storeResult(dst)
}

// emitHeapStub: dst = stub(frame, name, offset, nest) for heap slots of
// enclosing declarative environments
func (c *Compiler) emitHeapStub(id StubID, dst bytecode.Register, name, offset, nest uint32) {
	c.frame(RSI)
	c.symbol(RDX, name)
	c.asm.MovRegImm32(RCX, offset)
	c.asm.MovRegImm32(R8, nest)
	c.callStub(id)
	c.storeResult(dst)
}

func (c *Compiler) emitStoreHeap(src bytecode.Register, offset, nest uint32) {
	c.frame(RSI)
	c.load(RDX, src)
	c.asm.MovRegImm32(RCX, offset)
	c.asm.MovRegImm32(R8, nest)
	c.callStub(StubStoreHeap)
}

func (c *Compiler) emitIncrementHeap(op bytecode.Opcode, dst bytecode.Register, offset, nest uint32) {
	c.frame(RSI)
	c.asm.MovRegImm32(RDX, c.incrementMode(op, bytecode.OpIncrementHeap))
	c.asm.MovRegImm32(RCX, offset)
	c.asm.MovRegImm32(R8, nest)
	c.callStub(StubIncrementHeap)
	c.storeResult(dst)
}

func (c *Compiler) emitStoreName(src bytecode.Register, name uint32) {
	c.frame(RSI)
	c.symbol(RDX, name)
	c.load(RCX, src)
	c.callStub(strictStub(c.code.Strict, StubStoreName, StubStoreNameStrict))
}

func (c *Compiler) emitIncrementName(op bytecode.Opcode, dst bytecode.Register, name uint32) {
	c.frame(RSI)
	c.symbol(RDX, name)
	c.asm.MovRegImm32(RCX, c.incrementMode(op, bytecode.OpIncrementName))
	c.callStub(StubIncrementName)
	c.storeResult(dst)
}

// emitCoercible loads base into RSI and raises a TypeError when it is null
// or undefined. Only RCX is clobbered on the way through.
func (c *Compiler) emitCoercible(base bytecode.Register) {
	c.load(RSI, base)
	saved := c.last
	ok := c.asm.NewLabel()
	c.asm.MovRegReg(RCX, RSI)
	c.asm.AndRegImm32(RCX, ^int32(value.TagUndefined))
	c.asm.CmpRegImm32(RCX, int32(value.Null))
	c.asm.J(CondNE, ok)
	c.callStubNoReturn(StubRaiseNotCoercible)
	c.asm.Bind(ok)
	c.last = saved
}

func (c *Compiler) emitLoadProp(dst, base bytecode.Register, name uint32) {
	c.emitCoercible(base)
	c.symbol(RDX, name)
	c.ip(RCX)
	c.callStub(StubLoadProp)
	c.storeResult(dst)
}

func (c *Compiler) emitStoreProp(base bytecode.Register, name uint32, src bytecode.Register) {
	c.emitCoercible(base)
	c.symbol(RDX, name)
	c.load(RCX, src)
	c.ip(R8)
	c.callStub(strictStub(c.code.Strict, StubStoreProp, StubStorePropStrict))
}

func (c *Compiler) emitDeleteProp(dst, base bytecode.Register, name uint32) {
	c.emitCoercible(base)
	c.symbol(RDX, name)
	c.callStub(strictStub(c.code.Strict, StubDeleteProp, StubDeletePropStrict))
	c.storeResult(dst)
}

func (c *Compiler) emitIncrementProp(op bytecode.Opcode, dst, base bytecode.Register, name uint32) {
	c.emitCoercible(base)
	c.symbol(RDX, name)
	c.asm.MovRegImm32(RCX, c.incrementMode(op, bytecode.OpIncrementProp))
	c.callStub(StubIncrementProp)
	c.storeResult(dst)
}

func (c *Compiler) emitLoadElement(dst, base, element bytecode.Register) {
	c.emitCoercible(base)
	c.load(RDX, element)
	c.callStub(StubLoadElement)
	c.storeResult(dst)
}

func (c *Compiler) emitStoreElement(base, element, src bytecode.Register) {
	c.emitCoercible(base)
	c.load(RDX, element)
	c.load(RCX, src)
	c.callStub(strictStub(c.code.Strict, StubStoreElement, StubStoreElementStrict))
}

func (c *Compiler) emitDeleteElement(dst, base, element bytecode.Register) {
	c.emitCoercible(base)
	c.load(RDX, element)
	c.callStub(strictStub(c.code.Strict, StubDeleteElement, StubDeleteElementStrict))
	c.storeResult(dst)
}

func (c *Compiler) emitIncrementElement(op bytecode.Opcode, dst, base, element bytecode.Register) {
	c.emitCoercible(base)
	c.load(RDX, element)
	c.asm.MovRegImm32(RCX, c.incrementMode(op, bytecode.OpIncrementElement))
	c.callStub(StubIncrementElement)
	c.storeResult(dst)
}

// emitTryCatchSetup: bind the pending exception to name in a new catch
// scope and store it in dst
func (c *Compiler) emitTryCatchSetup(dst bytecode.Register, name uint32) {
	c.frame(RSI)
	c.symbol(RDX, name)
	c.callStub(StubTryCatchSetup)
	c.storeResult(dst)
}

func (c *Compiler) emitBuildEnv(size, mutableStart uint32) {
	c.frame(RSI)
	c.asm.MovRegImm32(RDX, size)
	c.asm.MovRegImm32(RCX, mutableStart)
	c.callStub(StubBuildEnv)
}

// emitInstantiate picks the configurable member of a binding stub pair from
// the instruction's flag.
func (c *Compiler) emitInstantiate(plain, configurable StubID, name uint32, isConfigurable bool) {
	id := plain
	if isConfigurable {
		id = configurable
	}
	c.frame(RSI)
	c.symbol(RDX, name)
	c.callStub(id)
}

func (c *Compiler) emitInitializeHeapImmutable(src bytecode.Register, offset uint32) {
	c.frame(RSI)
	c.load(RDX, src)
	c.asm.MovRegImm32(RCX, offset)
	c.callStub(StubInitializeHeapImmutable)
}

func (c *Compiler) emitWithSetup(src bytecode.Register) {
	c.frame(RSI)
	c.load(RDX, src)
	c.callStub(StubWithSetup)
}
