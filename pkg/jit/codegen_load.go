package jit

import (
	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// emitMove: dst = src
func (c *Compiler) emitMove(dst, src bytecode.Register) {
	c.load(RAX, src)
	c.storeResult(dst)
}

// emitLoadImmediate: dst = undefined/empty/null/true/false
func (c *Compiler) emitLoadImmediate(op bytecode.Opcode, dst bytecode.Register) {
	var v value.Value
	switch op {
	case bytecode.OpLoadUndefined:
		v = value.Undefined
	case bytecode.OpLoadEmpty:
		v = value.Empty
	case bytecode.OpLoadNull:
		v = value.Null
	case bytecode.OpLoadTrue:
		v = value.True
	case bytecode.OpLoadFalse:
		v = value.False
	}
	if v == value.Empty {
		c.asm.XorRegReg32(RAX, RAX)
	} else {
		c.asm.MovRegImm32(RAX, uint32(v))
	}
	c.storeResult(dst)
}

func (c *Compiler) emitLoadInt32(dst bytecode.Register, i int32) {
	c.asm.MovRegValue(RAX, uint64(value.Int32(i)))
	c.storeResult(dst)
}

func (c *Compiler) emitLoadConst(dst bytecode.Register, k uint32) {
	c.asm.MovRegValue(RAX, uint64(c.constant(k)))
	c.storeResult(dst)
}

func (c *Compiler) emitLoadCallee(dst bytecode.Register) {
	c.asm.MovRegMem64(RAX, FrameReg, FrameCallee)
	c.storeResult(dst)
}

func (c *Compiler) emitLoadArguments(dst bytecode.Register) {
	c.frame(RSI)
	c.callStub(StubLoadArguments)
	c.storeResult(dst)
}

// emitLoadFunction: dst = closure over nested code index in the current
// environment
func (c *Compiler) emitLoadFunction(dst bytecode.Register, index uint32) {
	assert(int(index) < len(c.code.Codes), "%s: nested code %d out of range", c.code.Name, index)
	c.frame(RSI)
	c.asm.MovRegValue(RDX, SymbolRef(c.code, index))
	c.callStub(StubLoadFunction)
	c.storeResult(dst)
}

func (c *Compiler) emitLoadRegExp(dst bytecode.Register, pattern, flags uint32) {
	c.asm.MovRegValue(RSI, uint64(c.constant(pattern)))
	c.asm.MovRegValue(RDX, uint64(c.constant(flags)))
	c.callStub(StubLoadRegExp)
	c.storeResult(dst)
}

func (c *Compiler) emitLoadArray(dst bytecode.Register, size uint32) {
	c.asm.MovRegImm32(RSI, size)
	c.callStub(StubLoadArray)
	c.storeResult(dst)
}

// emitInitVectorArrayElement: ary[index:index+count] = registers start...
func (c *Compiler) emitInitVectorArrayElement(ary, start bytecode.Register, index, count uint32) {
	c.load(RSI, ary)
	c.registerAddress(RDX, start)
	c.asm.MovRegImm32(RCX, index)
	c.asm.MovRegImm32(R8, count)
	c.callStub(StubInitVectorArrayElement)
}

func (c *Compiler) emitInitSparseArrayElement(ary bytecode.Register, index uint32, src bytecode.Register) {
	c.load(RSI, ary)
	c.asm.MovRegImm32(RDX, index)
	c.load(RCX, src)
	c.callStub(StubInitSparseArrayElement)
}

func (c *Compiler) emitLoadObject(dst bytecode.Register) {
	c.callStub(StubLoadObject)
	c.storeResult(dst)
}

// emitStoreObject: define a data property or accessor half on a literal
func (c *Compiler) emitStoreObject(op bytecode.Opcode, obj, item bytecode.Register, merged, name uint32) {
	id := StubStoreObjectData
	switch op {
	case bytecode.OpStoreObjectGet:
		id = StubStoreObjectGet
	case bytecode.OpStoreObjectSet:
		id = StubStoreObjectSet
	}
	c.load(RSI, obj)
	c.symbol(RDX, name)
	c.load(RCX, item)
	c.asm.MovRegImm32(R8, merged)
	c.callStub(id)
}
