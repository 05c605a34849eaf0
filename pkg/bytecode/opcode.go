package bytecode

// Opcode identifies one register-bytecode instruction.
type Opcode uint16

// Operand format letters, one per operand word:
//
//	r  register           i  signed immediate    u  unsigned immediate
//	k  constant index     n  name index          c  nested code index
//	j  jump displacement (words, relative to the instruction start)
//	s  packed (register, register, unsigned) triple
const (
	OpNop Opcode = iota

	// moves and constant loads
	OpMv
	OpLoadUndefined
	OpLoadEmpty
	OpLoadNull
	OpLoadTrue
	OpLoadFalse
	OpLoadInt32
	OpLoadConst
	OpLoadCallee
	OpLoadArguments
	OpLoadFunction
	OpLoadRegExp

	// literals
	OpLoadArray
	OpInitVectorArrayElement
	OpInitSparseArrayElement
	OpLoadObject
	OpStoreObjectData
	OpStoreObjectGet
	OpStoreObjectSet

	// globals
	OpLoadGlobal
	OpStoreGlobal
	OpDeleteGlobal
	OpTypeofGlobal
	OpIncrementGlobal
	OpDecrementGlobal
	OpPostfixIncrementGlobal
	OpPostfixDecrementGlobal

	// heap (closure) slots
	OpLoadHeap
	OpStoreHeap
	OpDeleteHeap
	OpTypeofHeap
	OpIncrementHeap
	OpDecrementHeap
	OpPostfixIncrementHeap
	OpPostfixDecrementHeap

	// dynamic name lookup
	OpLoadName
	OpStoreName
	OpDeleteName
	OpTypeofName
	OpIncrementName
	OpDecrementName
	OpPostfixIncrementName
	OpPostfixDecrementName

	// named properties
	OpLoadProp
	OpStoreProp
	OpDeleteProp
	OpIncrementProp
	OpDecrementProp
	OpPostfixIncrementProp
	OpPostfixDecrementProp

	// computed properties
	OpLoadElement
	OpStoreElement
	OpDeleteElement
	OpIncrementElement
	OpDecrementElement
	OpPostfixIncrementElement
	OpPostfixDecrementElement

	// binary operators
	OpBinaryAdd
	OpBinarySubtract
	OpBinaryMultiply
	OpBinaryDivide
	OpBinaryModulo
	OpBinaryLShift
	OpBinaryRShift
	OpBinaryRShiftLogical
	OpBinaryLT
	OpBinaryLTE
	OpBinaryGT
	OpBinaryGTE
	OpBinaryInstanceof
	OpBinaryIn
	OpBinaryEQ
	OpBinaryStrictEQ
	OpBinaryNE
	OpBinaryStrictNE
	OpBinaryBitAnd
	OpBinaryBitXor
	OpBinaryBitOr

	// fused compare-and-branch
	OpIfFalseBinaryLT
	OpIfFalseBinaryLTE
	OpIfFalseBinaryGT
	OpIfFalseBinaryGTE
	OpIfFalseBinaryEQ
	OpIfFalseBinaryStrictEQ
	OpIfFalseBinaryNE
	OpIfFalseBinaryStrictNE
	OpIfTrueBinaryLT
	OpIfTrueBinaryLTE
	OpIfTrueBinaryGT
	OpIfTrueBinaryGTE
	OpIfTrueBinaryEQ
	OpIfTrueBinaryStrictEQ
	OpIfTrueBinaryNE
	OpIfTrueBinaryStrictNE

	// unary operators and conversions
	OpUnaryPositive
	OpUnaryNegative
	OpUnaryNot
	OpUnaryBitNot
	OpTypeof
	OpIncrement
	OpDecrement
	OpPostfixIncrement
	OpPostfixDecrement
	OpToNumber
	OpToPrimitiveAndToString
	OpConcat

	// errors and environments
	OpRaiseReference
	OpRaiseImmutable
	OpThrow
	OpDebugger
	OpTryCatchSetup
	OpBuildEnv
	OpInstantiateDeclarationBinding
	OpInstantiateVariableBinding
	OpInitializeHeapImmutable
	OpWithSetup
	OpPopEnv

	// control flow
	OpJumpBy
	OpJumpSubroutine
	OpReturnSubroutine
	OpIfFalse
	OpIfTrue
	OpForInSetup
	OpForInEnumerate
	OpForInLeave

	// calls
	OpCall
	OpConstruct
	OpEval
	OpPrepareDynamicCall
	OpReturn

	NumOpcodes
)

type opcodeInfo struct {
	name   string
	format string
}

var opcodes = [NumOpcodes]opcodeInfo{
	OpNop: {"NOP", ""},

	OpMv:            {"MV", "rr"},
	OpLoadUndefined: {"LOAD_UNDEFINED", "r"},
	OpLoadEmpty:     {"LOAD_EMPTY", "r"},
	OpLoadNull:      {"LOAD_NULL", "r"},
	OpLoadTrue:      {"LOAD_TRUE", "r"},
	OpLoadFalse:     {"LOAD_FALSE", "r"},
	OpLoadInt32:     {"LOAD_INT32", "ri"},
	OpLoadConst:     {"LOAD_CONST", "rk"},
	OpLoadCallee:    {"LOAD_CALLEE", "r"},
	OpLoadArguments: {"LOAD_ARGUMENTS", "r"},
	OpLoadFunction:  {"LOAD_FUNCTION", "rc"},
	OpLoadRegExp:    {"LOAD_REGEXP", "rkk"},

	OpLoadArray:              {"LOAD_ARRAY", "ru"},
	OpInitVectorArrayElement: {"INIT_VECTOR_ARRAY_ELEMENT", "su"},
	OpInitSparseArrayElement: {"INIT_SPARSE_ARRAY_ELEMENT", "rur"},
	OpLoadObject:             {"LOAD_OBJECT", "r"},
	OpStoreObjectData:        {"STORE_OBJECT_DATA", "sn"},
	OpStoreObjectGet:         {"STORE_OBJECT_GET", "sn"},
	OpStoreObjectSet:         {"STORE_OBJECT_SET", "sn"},

	OpLoadGlobal:             {"LOAD_GLOBAL", "rn"},
	OpStoreGlobal:            {"STORE_GLOBAL", "rn"},
	OpDeleteGlobal:           {"DELETE_GLOBAL", "rn"},
	OpTypeofGlobal:           {"TYPEOF_GLOBAL", "rn"},
	OpIncrementGlobal:        {"INCREMENT_GLOBAL", "rn"},
	OpDecrementGlobal:        {"DECREMENT_GLOBAL", "rn"},
	OpPostfixIncrementGlobal: {"POSTFIX_INCREMENT_GLOBAL", "rn"},
	OpPostfixDecrementGlobal: {"POSTFIX_DECREMENT_GLOBAL", "rn"},

	OpLoadHeap:             {"LOAD_HEAP", "rnuu"},
	OpStoreHeap:            {"STORE_HEAP", "rnuu"},
	OpDeleteHeap:           {"DELETE_HEAP", "rn"},
	OpTypeofHeap:           {"TYPEOF_HEAP", "rnuu"},
	OpIncrementHeap:        {"INCREMENT_HEAP", "rnuu"},
	OpDecrementHeap:        {"DECREMENT_HEAP", "rnuu"},
	OpPostfixIncrementHeap: {"POSTFIX_INCREMENT_HEAP", "rnuu"},
	OpPostfixDecrementHeap: {"POSTFIX_DECREMENT_HEAP", "rnuu"},

	OpLoadName:             {"LOAD_NAME", "rn"},
	OpStoreName:            {"STORE_NAME", "rn"},
	OpDeleteName:           {"DELETE_NAME", "rn"},
	OpTypeofName:           {"TYPEOF_NAME", "rn"},
	OpIncrementName:        {"INCREMENT_NAME", "rn"},
	OpDecrementName:        {"DECREMENT_NAME", "rn"},
	OpPostfixIncrementName: {"POSTFIX_INCREMENT_NAME", "rn"},
	OpPostfixDecrementName: {"POSTFIX_DECREMENT_NAME", "rn"},

	OpLoadProp:             {"LOAD_PROP", "rrn"},
	OpStoreProp:            {"STORE_PROP", "rnr"},
	OpDeleteProp:           {"DELETE_PROP", "rrn"},
	OpIncrementProp:        {"INCREMENT_PROP", "rrn"},
	OpDecrementProp:        {"DECREMENT_PROP", "rrn"},
	OpPostfixIncrementProp: {"POSTFIX_INCREMENT_PROP", "rrn"},
	OpPostfixDecrementProp: {"POSTFIX_DECREMENT_PROP", "rrn"},

	OpLoadElement:             {"LOAD_ELEMENT", "rrr"},
	OpStoreElement:            {"STORE_ELEMENT", "rrr"},
	OpDeleteElement:           {"DELETE_ELEMENT", "rrr"},
	OpIncrementElement:        {"INCREMENT_ELEMENT", "rrr"},
	OpDecrementElement:        {"DECREMENT_ELEMENT", "rrr"},
	OpPostfixIncrementElement: {"POSTFIX_INCREMENT_ELEMENT", "rrr"},
	OpPostfixDecrementElement: {"POSTFIX_DECREMENT_ELEMENT", "rrr"},

	OpBinaryAdd:           {"BINARY_ADD", "rrr"},
	OpBinarySubtract:      {"BINARY_SUBTRACT", "rrr"},
	OpBinaryMultiply:      {"BINARY_MULTIPLY", "rrr"},
	OpBinaryDivide:        {"BINARY_DIVIDE", "rrr"},
	OpBinaryModulo:        {"BINARY_MODULO", "rrr"},
	OpBinaryLShift:        {"BINARY_LSHIFT", "rrr"},
	OpBinaryRShift:        {"BINARY_RSHIFT", "rrr"},
	OpBinaryRShiftLogical: {"BINARY_RSHIFT_LOGICAL", "rrr"},
	OpBinaryLT:            {"BINARY_LT", "rrr"},
	OpBinaryLTE:           {"BINARY_LTE", "rrr"},
	OpBinaryGT:            {"BINARY_GT", "rrr"},
	OpBinaryGTE:           {"BINARY_GTE", "rrr"},
	OpBinaryInstanceof:    {"BINARY_INSTANCEOF", "rrr"},
	OpBinaryIn:            {"BINARY_IN", "rrr"},
	OpBinaryEQ:            {"BINARY_EQ", "rrr"},
	OpBinaryStrictEQ:      {"BINARY_STRICT_EQ", "rrr"},
	OpBinaryNE:            {"BINARY_NE", "rrr"},
	OpBinaryStrictNE:      {"BINARY_STRICT_NE", "rrr"},
	OpBinaryBitAnd:        {"BINARY_BIT_AND", "rrr"},
	OpBinaryBitXor:        {"BINARY_BIT_XOR", "rrr"},
	OpBinaryBitOr:         {"BINARY_BIT_OR", "rrr"},

	OpIfFalseBinaryLT:       {"IF_FALSE_BINARY_LT", "rrj"},
	OpIfFalseBinaryLTE:      {"IF_FALSE_BINARY_LTE", "rrj"},
	OpIfFalseBinaryGT:       {"IF_FALSE_BINARY_GT", "rrj"},
	OpIfFalseBinaryGTE:      {"IF_FALSE_BINARY_GTE", "rrj"},
	OpIfFalseBinaryEQ:       {"IF_FALSE_BINARY_EQ", "rrj"},
	OpIfFalseBinaryStrictEQ: {"IF_FALSE_BINARY_STRICT_EQ", "rrj"},
	OpIfFalseBinaryNE:       {"IF_FALSE_BINARY_NE", "rrj"},
	OpIfFalseBinaryStrictNE: {"IF_FALSE_BINARY_STRICT_NE", "rrj"},
	OpIfTrueBinaryLT:        {"IF_TRUE_BINARY_LT", "rrj"},
	OpIfTrueBinaryLTE:       {"IF_TRUE_BINARY_LTE", "rrj"},
	OpIfTrueBinaryGT:        {"IF_TRUE_BINARY_GT", "rrj"},
	OpIfTrueBinaryGTE:       {"IF_TRUE_BINARY_GTE", "rrj"},
	OpIfTrueBinaryEQ:        {"IF_TRUE_BINARY_EQ", "rrj"},
	OpIfTrueBinaryStrictEQ:  {"IF_TRUE_BINARY_STRICT_EQ", "rrj"},
	OpIfTrueBinaryNE:        {"IF_TRUE_BINARY_NE", "rrj"},
	OpIfTrueBinaryStrictNE:  {"IF_TRUE_BINARY_STRICT_NE", "rrj"},

	OpUnaryPositive:          {"UNARY_POSITIVE", "rr"},
	OpUnaryNegative:          {"UNARY_NEGATIVE", "rr"},
	OpUnaryNot:               {"UNARY_NOT", "rr"},
	OpUnaryBitNot:            {"UNARY_BIT_NOT", "rr"},
	OpTypeof:                 {"TYPEOF", "rr"},
	OpIncrement:              {"INCREMENT", "r"},
	OpDecrement:              {"DECREMENT", "r"},
	OpPostfixIncrement:       {"POSTFIX_INCREMENT", "rr"},
	OpPostfixDecrement:       {"POSTFIX_DECREMENT", "rr"},
	OpToNumber:               {"TO_NUMBER", "rr"},
	OpToPrimitiveAndToString: {"TO_PRIMITIVE_AND_TO_STRING", "rr"},
	OpConcat:                 {"CONCAT", "rru"},

	OpRaiseReference:                {"RAISE_REFERENCE", ""},
	OpRaiseImmutable:                {"RAISE_IMMUTABLE", "n"},
	OpThrow:                         {"THROW", "r"},
	OpDebugger:                      {"DEBUGGER", ""},
	OpTryCatchSetup:                 {"TRY_CATCH_SETUP", "rn"},
	OpBuildEnv:                      {"BUILD_ENV", "uu"},
	OpInstantiateDeclarationBinding: {"INSTANTIATE_DECLARATION_BINDING", "nu"},
	OpInstantiateVariableBinding:    {"INSTANTIATE_VARIABLE_BINDING", "nu"},
	OpInitializeHeapImmutable:       {"INITIALIZE_HEAP_IMMUTABLE", "ru"},
	OpWithSetup:                     {"WITH_SETUP", "r"},
	OpPopEnv:                        {"POP_ENV", ""},

	OpJumpBy:           {"JUMP_BY", "j"},
	OpJumpSubroutine:   {"JUMP_SUBROUTINE", "rrj"},
	OpReturnSubroutine: {"RETURN_SUBROUTINE", "rr"},
	OpIfFalse:          {"IF_FALSE", "rj"},
	OpIfTrue:           {"IF_TRUE", "rj"},
	OpForInSetup:       {"FORIN_SETUP", "rrj"},
	OpForInEnumerate:   {"FORIN_ENUMERATE", "rrj"},
	OpForInLeave:       {"FORIN_LEAVE", "r"},

	OpCall:               {"CALL", "rrru"},
	OpConstruct:          {"CONSTRUCT", "rrru"},
	OpEval:               {"EVAL", "rrru"},
	OpPrepareDynamicCall: {"PREPARE_DYNAMIC_CALL", "rrn"},
	OpReturn:             {"RETURN", "r"},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, NumOpcodes)
	for op := Opcode(0); op < NumOpcodes; op++ {
		m[opcodes[op].name] = op
	}
	return m
}()

// LookupOpcode finds an opcode by its listing name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (op Opcode) Valid() bool { return op < NumOpcodes }

func (op Opcode) String() string {
	if !op.Valid() {
		return "INVALID"
	}
	return opcodes[op].name
}

// Format returns the operand format string.
func (op Opcode) Format() string { return opcodes[op].format }

// Length is the instruction size in words, opcode word included.
func (op Opcode) Length() uint32 { return uint32(1 + len(opcodes[op].format)) }

// JumpOperand returns the word index (1-based) of the jump displacement, or
// 0 if the opcode does not jump.
func (op Opcode) JumpOperand() int {
	for i, f := range opcodes[op].format {
		if f == 'j' {
			return i + 1
		}
	}
	return 0
}

// IsJump reports whether the opcode carries a relative jump target.
func (op Opcode) IsJump() bool { return op.JumpOperand() != 0 }

// IsFusedCompare reports whether op is an IF_TRUE_BINARY_* or
// IF_FALSE_BINARY_* instruction.
func (op Opcode) IsFusedCompare() bool {
	return op >= OpIfFalseBinaryLT && op <= OpIfTrueBinaryStrictNE
}

// FusedComparison splits a fused compare-and-branch opcode into the binary
// comparison it performs and whether it jumps when the comparison holds.
func (op Opcode) FusedComparison() (cmp Opcode, jumpIfTrue bool) {
	base := [...]Opcode{OpBinaryLT, OpBinaryLTE, OpBinaryGT, OpBinaryGTE,
		OpBinaryEQ, OpBinaryStrictEQ, OpBinaryNE, OpBinaryStrictNE}
	if op >= OpIfTrueBinaryLT {
		return base[op-OpIfTrueBinaryLT], true
	}
	return base[op-OpIfFalseBinaryLT], false
}
