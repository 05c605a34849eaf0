package jit

import (
	"fmt"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/value"
)

// StubID names a slow-path routine implemented outside compiled code.
type StubID uint32

// Arguments are listed in register order RSI, RDX, RCX, R8, R9. Frame is
// the caller's frame pointer, sym a SymbolRef, ip an InstructionPointer.
const (
	// (lhs, rhs) -> value, same order as the BINARY_* opcodes
	StubBinaryAdd StubID = iota
	StubBinarySubtract
	StubBinaryMultiply
	StubBinaryDivide
	StubBinaryModulo
	StubBinaryLShift
	StubBinaryRShift
	StubBinaryRShiftLogical
	StubBinaryLT
	StubBinaryLTE
	StubBinaryGT
	StubBinaryGTE
	StubBinaryInstanceof
	StubBinaryIn
	StubBinaryEQ
	StubBinaryStrictEQ
	StubBinaryNE
	StubBinaryStrictNE
	StubBinaryBitAnd
	StubBinaryBitXor
	StubBinaryBitOr

	// (src) -> value
	StubUnaryPositive
	StubUnaryNegative
	StubUnaryNot
	StubUnaryBitNot
	StubTypeof
	StubIncrement
	StubDecrement
	StubToNumber
	StubToPrimitiveAndToString
	StubToBoolean
	StubConcat // (&first register, count) -> string

	StubLoadFunction  // (frame, code ref) -> function
	StubLoadRegExp    // (pattern, flags) -> object
	StubLoadArguments // (frame) -> object

	StubLoadArray              // (size) -> array
	StubInitVectorArrayElement // (array, &first register, index, count)
	StubInitSparseArrayElement // (array, index, value)
	StubLoadObject             // () -> object
	StubStoreObjectData        // (object, sym, value, merged)
	StubStoreObjectGet         // (object, sym, function, merged)
	StubStoreObjectSet         // (object, sym, function, merged)

	StubLoadGlobal        // (sym, ip) -> value
	StubStoreGlobal       // (sym, value, ip)
	StubStoreGlobalStrict // (sym, value, ip)
	StubDeleteGlobal      // (sym) -> bool
	StubTypeofGlobal      // (sym) -> string
	StubIncrementGlobal   // (sym, mode) -> value

	StubLoadHeap      // (frame, sym, offset, nest) -> value
	StubStoreHeap     // (frame, value, offset, nest)
	StubTypeofHeap    // (frame, sym, offset, nest) -> string
	StubIncrementHeap // (frame, mode, offset, nest) -> value

	StubLoadName        // (frame, sym) -> value
	StubStoreName       // (frame, sym, value)
	StubStoreNameStrict // (frame, sym, value)
	StubDeleteName      // (frame, sym) -> bool
	StubTypeofName      // (frame, sym) -> string
	StubIncrementName   // (frame, sym, mode) -> value

	StubLoadProp         // (base, sym, ip) -> value
	StubStoreProp        // (base, sym, value, ip)
	StubStorePropStrict  // (base, sym, value, ip)
	StubDeleteProp       // (base, sym) -> bool
	StubDeletePropStrict // (base, sym) -> bool
	StubIncrementProp    // (base, sym, mode) -> value

	StubLoadElement         // (base, element) -> value
	StubStoreElement        // (base, element, value)
	StubStoreElementStrict  // (base, element, value)
	StubDeleteElement       // (base, element) -> bool
	StubDeleteElementStrict // (base, element) -> bool
	StubIncrementElement    // (base, element, mode) -> value

	StubRaiseNotCoercible // (base) never returns
	StubRaiseReference    // () never returns
	StubRaiseImmutable    // (sym) never returns
	StubThrow             // (value) never returns
	StubDebugger          // ()

	StubTryCatchSetup                             // (frame, sym) -> exception
	StubBuildEnv                                  // (frame, size, mutable start)
	StubInstantiateDeclarationBinding             // (frame, sym)
	StubInstantiateDeclarationBindingConfigurable // (frame, sym)
	StubInstantiateVariableBinding                // (frame, sym)
	StubInstantiateVariableBindingConfigurable    // (frame, sym)
	StubInitializeHeapImmutable                   // (frame, value, offset)
	StubWithSetup                                 // (frame, object)
	StubPopEnv                                    // (frame)

	StubForInSetup     // (enumerable) -> iterator
	StubForInEnumerate // (iterator) -> key or empty
	StubForInLeave     // (iterator)

	// (callee, &this slot, argc, &native frame slot, ip) -> (frame, value)
	StubCall
	StubConstruct
	StubEval
	StubPrepareDynamicCall // (frame, sym, &this slot) -> function

	NumStubs
)

// Increment modes passed to the *Increment* stubs.
const (
	IncrementDecrement = 1 << iota
	IncrementPostfix
	IncrementStrict
)

var stubNames = [NumStubs]string{
	StubBinaryAdd: "binary_add", StubBinarySubtract: "binary_subtract",
	StubBinaryMultiply: "binary_multiply", StubBinaryDivide: "binary_divide",
	StubBinaryModulo: "binary_modulo", StubBinaryLShift: "binary_lshift",
	StubBinaryRShift: "binary_rshift", StubBinaryRShiftLogical: "binary_rshift_logical",
	StubBinaryLT: "binary_lt", StubBinaryLTE: "binary_lte", StubBinaryGT: "binary_gt",
	StubBinaryGTE: "binary_gte", StubBinaryInstanceof: "binary_instanceof",
	StubBinaryIn: "binary_in", StubBinaryEQ: "binary_eq", StubBinaryStrictEQ: "binary_strict_eq",
	StubBinaryNE: "binary_ne", StubBinaryStrictNE: "binary_strict_ne",
	StubBinaryBitAnd: "binary_bit_and", StubBinaryBitXor: "binary_bit_xor",
	StubBinaryBitOr: "binary_bit_or",

	StubUnaryPositive: "unary_positive", StubUnaryNegative: "unary_negative",
	StubUnaryNot: "unary_not", StubUnaryBitNot: "unary_bit_not", StubTypeof: "typeof",
	StubIncrement: "increment", StubDecrement: "decrement", StubToNumber: "to_number",
	StubToPrimitiveAndToString: "to_primitive_and_to_string", StubToBoolean: "to_boolean",
	StubConcat: "concat",

	StubLoadFunction: "load_function", StubLoadRegExp: "load_regexp",
	StubLoadArguments: "load_arguments",

	StubLoadArray: "load_array", StubInitVectorArrayElement: "init_vector_array_element",
	StubInitSparseArrayElement: "init_sparse_array_element", StubLoadObject: "load_object",
	StubStoreObjectData: "store_object_data", StubStoreObjectGet: "store_object_get",
	StubStoreObjectSet: "store_object_set",

	StubLoadGlobal: "load_global", StubStoreGlobal: "store_global",
	StubStoreGlobalStrict: "store_global_strict", StubDeleteGlobal: "delete_global",
	StubTypeofGlobal: "typeof_global", StubIncrementGlobal: "increment_global",

	StubLoadHeap: "load_heap", StubStoreHeap: "store_heap", StubTypeofHeap: "typeof_heap",
	StubIncrementHeap: "increment_heap",

	StubLoadName: "load_name", StubStoreName: "store_name", StubStoreNameStrict: "store_name_strict",
	StubDeleteName: "delete_name", StubTypeofName: "typeof_name", StubIncrementName: "increment_name",

	StubLoadProp: "load_prop", StubStoreProp: "store_prop", StubStorePropStrict: "store_prop_strict",
	StubDeleteProp: "delete_prop", StubDeletePropStrict: "delete_prop_strict",
	StubIncrementProp: "increment_prop",

	StubLoadElement: "load_element", StubStoreElement: "store_element",
	StubStoreElementStrict: "store_element_strict", StubDeleteElement: "delete_element",
	StubDeleteElementStrict: "delete_element_strict", StubIncrementElement: "increment_element",

	StubRaiseNotCoercible: "raise_not_coercible", StubRaiseReference: "raise_reference",
	StubRaiseImmutable: "raise_immutable", StubThrow: "throw", StubDebugger: "debugger",

	StubTryCatchSetup: "try_catch_setup", StubBuildEnv: "build_env",
	StubInstantiateDeclarationBinding:             "instantiate_declaration_binding",
	StubInstantiateDeclarationBindingConfigurable: "instantiate_declaration_binding_configurable",
	StubInstantiateVariableBinding:                "instantiate_variable_binding",
	StubInstantiateVariableBindingConfigurable:    "instantiate_variable_binding_configurable",
	StubInitializeHeapImmutable:                   "initialize_heap_immutable",
	StubWithSetup:                                 "with_setup", StubPopEnv: "pop_env",

	StubForInSetup: "forin_setup", StubForInEnumerate: "forin_enumerate",
	StubForInLeave: "forin_leave",

	StubCall: "call", StubConstruct: "construct", StubEval: "eval",
	StubPrepareDynamicCall: "prepare_dynamic_call",
}

func (id StubID) String() string {
	if id >= NumStubs {
		return fmt.Sprintf("stub(%d)", uint32(id))
	}
	return stubNames[id]
}

// binaryStub maps a BINARY_* opcode to its fallback stub.
func binaryStub(op bytecode.Opcode) StubID {
	assert(op >= bytecode.OpBinaryAdd && op <= bytecode.OpBinaryBitOr, "%s is not a binary operator", op)
	return StubBinaryAdd + StubID(op-bytecode.OpBinaryAdd)
}

// strictStub picks the strict or sloppy member of a stub pair.
func strictStub(strict bool, sloppy, strictID StubID) StubID {
	if strict {
		return strictID
	}
	return sloppy
}

// StubHandler implements the routines compiled code calls through the stub
// thunk. args holds RSI, RDX, RCX, R8, R9 as captured at the call; r0 is
// returned in RAX and r1 in RDX.
type StubHandler interface {
	// Prepare boxes code.Constants into code.Pool before compilation.
	Prepare(m *Machine, code *bytecode.Code) error
	Stub(m *Machine, id StubID, args *[5]uint64) (r0, r1 uint64, err error)
	// Unwind is told that an exception is about to enter handler h of the
	// code running in frame.
	Unwind(m *Machine, frame Frame, h *bytecode.Handler)
}

// Exception is the error a stub returns to throw a value. Any other error
// aborts the run.
type Exception struct {
	Value   value.Value
	Message string
}

func (e *Exception) Error() string {
	if e.Message != "" {
		return "uncaught exception: " + e.Message
	}
	return fmt.Sprintf("uncaught exception: %#x", uint64(e.Value))
}
