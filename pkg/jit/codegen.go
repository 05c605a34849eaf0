package jit

import (
	"jsjit/pkg/bytecode"
)

// emitInstruction generates code for the instruction under cur.
func (c *Compiler) emitInstruction(cur *bytecode.Cursor) {
	op := cur.Opcode()
	reg := func(i int) bytecode.Register { return cur.Operand(i).Reg() }
	u32 := func(i int) uint32 { return cur.Operand(i).U32() }
	target := func() Label { return c.label(cur.JumpTarget()) }

	switch op {
	case bytecode.OpNop:
		c.next = c.last

	// moves and literals
	case bytecode.OpMv:
		c.emitMove(reg(1), reg(2))
	case bytecode.OpLoadUndefined, bytecode.OpLoadEmpty, bytecode.OpLoadNull,
		bytecode.OpLoadTrue, bytecode.OpLoadFalse:
		c.emitLoadImmediate(op, reg(1))
	case bytecode.OpLoadInt32:
		c.emitLoadInt32(reg(1), cur.Operand(2).I32())
	case bytecode.OpLoadConst:
		c.emitLoadConst(reg(1), u32(2))
	case bytecode.OpLoadCallee:
		c.emitLoadCallee(reg(1))
	case bytecode.OpLoadArguments:
		c.emitLoadArguments(reg(1))
	case bytecode.OpLoadFunction:
		c.emitLoadFunction(reg(1), u32(2))
	case bytecode.OpLoadRegExp:
		c.emitLoadRegExp(reg(1), u32(2), u32(3))

	case bytecode.OpLoadArray:
		c.emitLoadArray(reg(1), u32(2))
	case bytecode.OpInitVectorArrayElement:
		ary, start, index := cur.Operand(1).SSW()
		c.emitInitVectorArrayElement(ary, start, index, u32(2))
	case bytecode.OpInitSparseArrayElement:
		c.emitInitSparseArrayElement(reg(1), u32(2), reg(3))
	case bytecode.OpLoadObject:
		c.emitLoadObject(reg(1))
	case bytecode.OpStoreObjectData, bytecode.OpStoreObjectGet, bytecode.OpStoreObjectSet:
		obj, item, merged := cur.Operand(1).SSW()
		c.emitStoreObject(op, obj, item, merged, u32(2))

	// variables
	case bytecode.OpLoadGlobal:
		c.emitLoadGlobal(reg(1), u32(2))
	case bytecode.OpStoreGlobal:
		c.emitStoreGlobal(reg(1), u32(2))
	case bytecode.OpDeleteGlobal:
		c.emitNameStub(StubDeleteGlobal, reg(1), u32(2), false)
	case bytecode.OpTypeofGlobal:
		c.emitNameStub(StubTypeofGlobal, reg(1), u32(2), false)
	case bytecode.OpIncrementGlobal, bytecode.OpDecrementGlobal,
		bytecode.OpPostfixIncrementGlobal, bytecode.OpPostfixDecrementGlobal:
		c.emitIncrementGlobal(op, reg(1), u32(2))

	case bytecode.OpLoadHeap:
		c.emitHeapStub(StubLoadHeap, reg(1), u32(2), u32(3), u32(4))
	case bytecode.OpTypeofHeap:
		c.emitHeapStub(StubTypeofHeap, reg(1), u32(2), u32(3), u32(4))
	case bytecode.OpStoreHeap:
		c.emitStoreHeap(reg(1), u32(3), u32(4))
	case bytecode.OpDeleteHeap:
		c.emitLoadImmediate(bytecode.OpLoadFalse, reg(1))
	case bytecode.OpIncrementHeap, bytecode.OpDecrementHeap,
		bytecode.OpPostfixIncrementHeap, bytecode.OpPostfixDecrementHeap:
		c.emitIncrementHeap(op, reg(1), u32(3), u32(4))

	case bytecode.OpLoadName:
		c.emitNameStub(StubLoadName, reg(1), u32(2), true)
	case bytecode.OpStoreName:
		c.emitStoreName(reg(1), u32(2))
	case bytecode.OpDeleteName:
		c.emitNameStub(StubDeleteName, reg(1), u32(2), true)
	case bytecode.OpTypeofName:
		c.emitNameStub(StubTypeofName, reg(1), u32(2), true)
	case bytecode.OpIncrementName, bytecode.OpDecrementName,
		bytecode.OpPostfixIncrementName, bytecode.OpPostfixDecrementName:
		c.emitIncrementName(op, reg(1), u32(2))

	// properties
	case bytecode.OpLoadProp:
		c.emitLoadProp(reg(1), reg(2), u32(3))
	case bytecode.OpStoreProp:
		c.emitStoreProp(reg(1), u32(2), reg(3))
	case bytecode.OpDeleteProp:
		c.emitDeleteProp(reg(1), reg(2), u32(3))
	case bytecode.OpIncrementProp, bytecode.OpDecrementProp,
		bytecode.OpPostfixIncrementProp, bytecode.OpPostfixDecrementProp:
		c.emitIncrementProp(op, reg(1), reg(2), u32(3))

	case bytecode.OpLoadElement:
		c.emitLoadElement(reg(1), reg(2), reg(3))
	case bytecode.OpStoreElement:
		c.emitStoreElement(reg(1), reg(2), reg(3))
	case bytecode.OpDeleteElement:
		c.emitDeleteElement(reg(1), reg(2), reg(3))
	case bytecode.OpIncrementElement, bytecode.OpDecrementElement,
		bytecode.OpPostfixIncrementElement, bytecode.OpPostfixDecrementElement:
		c.emitIncrementElement(op, reg(1), reg(2), reg(3))

	// arithmetic
	case bytecode.OpBinaryAdd, bytecode.OpBinarySubtract, bytecode.OpBinaryMultiply:
		c.emitArith(op, reg(1), reg(2), reg(3))
	case bytecode.OpBinaryDivide:
		c.emitDivide(reg(1), reg(2), reg(3))
	case bytecode.OpBinaryModulo:
		c.emitModulo(reg(1), reg(2), reg(3))
	case bytecode.OpBinaryLShift, bytecode.OpBinaryRShift, bytecode.OpBinaryRShiftLogical:
		c.emitShift(op, reg(1), reg(2), reg(3))
	case bytecode.OpBinaryBitAnd, bytecode.OpBinaryBitXor, bytecode.OpBinaryBitOr:
		c.emitBitwise(op, reg(1), reg(2), reg(3))
	case bytecode.OpBinaryLT, bytecode.OpBinaryLTE, bytecode.OpBinaryGT, bytecode.OpBinaryGTE,
		bytecode.OpBinaryEQ, bytecode.OpBinaryStrictEQ, bytecode.OpBinaryNE, bytecode.OpBinaryStrictNE:
		c.emitCompare(op, reg(1), reg(2), reg(3))
	case bytecode.OpBinaryInstanceof, bytecode.OpBinaryIn:
		c.emitBinaryStub(op, reg(1), reg(2), reg(3))

	case bytecode.OpIfFalseBinaryLT, bytecode.OpIfFalseBinaryLTE, bytecode.OpIfFalseBinaryGT,
		bytecode.OpIfFalseBinaryGTE, bytecode.OpIfFalseBinaryEQ, bytecode.OpIfFalseBinaryStrictEQ,
		bytecode.OpIfFalseBinaryNE, bytecode.OpIfFalseBinaryStrictNE,
		bytecode.OpIfTrueBinaryLT, bytecode.OpIfTrueBinaryLTE, bytecode.OpIfTrueBinaryGT,
		bytecode.OpIfTrueBinaryGTE, bytecode.OpIfTrueBinaryEQ, bytecode.OpIfTrueBinaryStrictEQ,
		bytecode.OpIfTrueBinaryNE, bytecode.OpIfTrueBinaryStrictNE:
		c.emitCompareBranch(op, reg(1), reg(2), target())

	case bytecode.OpUnaryPositive:
		c.emitToNumber(StubUnaryPositive, reg(1), reg(2))
	case bytecode.OpToNumber:
		c.emitToNumber(StubToNumber, reg(1), reg(2))
	case bytecode.OpUnaryNegative:
		c.emitNegate(reg(1), reg(2))
	case bytecode.OpUnaryNot:
		c.emitNot(reg(1), reg(2))
	case bytecode.OpUnaryBitNot:
		c.emitBitNot(reg(1), reg(2))
	case bytecode.OpTypeof:
		c.emitUnaryStub(StubTypeof, reg(1), reg(2))
	case bytecode.OpIncrement, bytecode.OpDecrement:
		c.emitIncrement(op == bytecode.OpDecrement, reg(1))
	case bytecode.OpPostfixIncrement, bytecode.OpPostfixDecrement:
		c.emitPostfixIncrement(op == bytecode.OpPostfixDecrement, reg(1), reg(2))
	case bytecode.OpToPrimitiveAndToString:
		c.emitToPrimitiveAndToString(reg(1), reg(2))
	case bytecode.OpConcat:
		c.emitConcat(reg(1), reg(2), u32(3))

	// environments and exceptions
	case bytecode.OpRaiseReference:
		c.callStubNoReturn(StubRaiseReference)
	case bytecode.OpRaiseImmutable:
		c.symbol(RSI, u32(1))
		c.callStubNoReturn(StubRaiseImmutable)
	case bytecode.OpThrow:
		c.load(RSI, reg(1))
		c.callStubNoReturn(StubThrow)
	case bytecode.OpDebugger:
		c.callStub(StubDebugger)
	case bytecode.OpTryCatchSetup:
		c.emitTryCatchSetup(reg(1), u32(2))
	case bytecode.OpBuildEnv:
		c.emitBuildEnv(u32(1), u32(2))
	case bytecode.OpInstantiateDeclarationBinding:
		c.emitInstantiate(StubInstantiateDeclarationBinding, StubInstantiateDeclarationBindingConfigurable,
			u32(1), u32(2) != 0)
	case bytecode.OpInstantiateVariableBinding:
		c.emitInstantiate(StubInstantiateVariableBinding, StubInstantiateVariableBindingConfigurable,
			u32(1), u32(2) != 0)
	case bytecode.OpInitializeHeapImmutable:
		c.emitInitializeHeapImmutable(reg(1), u32(2))
	case bytecode.OpWithSetup:
		c.emitWithSetup(reg(1))
	case bytecode.OpPopEnv:
		c.frame(RSI)
		c.callStub(StubPopEnv)

	// control flow
	case bytecode.OpJumpBy:
		c.asm.Jmp(target())
	case bytecode.OpJumpSubroutine:
		c.emitJumpSubroutine(reg(1), reg(2), target())
	case bytecode.OpReturnSubroutine:
		c.emitReturnSubroutine(reg(1), reg(2))
	case bytecode.OpIfFalse:
		c.emitConditionalJump(reg(1), target(), false)
	case bytecode.OpIfTrue:
		c.emitConditionalJump(reg(1), target(), true)
	case bytecode.OpForInSetup:
		c.emitForInSetup(reg(1), reg(2), target())
	case bytecode.OpForInEnumerate:
		c.emitForInEnumerate(reg(1), reg(2), target())
	case bytecode.OpForInLeave:
		c.load(RSI, reg(1))
		c.callStub(StubForInLeave)

	// calls
	case bytecode.OpCall:
		c.emitCall(StubCall, reg(1), reg(2), reg(3), u32(4))
	case bytecode.OpConstruct:
		c.emitCall(StubConstruct, reg(1), reg(2), reg(3), u32(4))
	case bytecode.OpEval:
		c.emitCall(StubEval, reg(1), reg(2), reg(3), u32(4))
	case bytecode.OpPrepareDynamicCall:
		c.emitPrepareDynamicCall(reg(1), reg(2), u32(3))
	case bytecode.OpReturn:
		c.load(RAX, reg(1))
		c.emitReturnRAX()

	default:
		assert(false, "%s: unknown opcode %d at %d", c.code.Name, op, c.offset)
	}
}
