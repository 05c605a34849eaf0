// Package value defines the 64-bit tagged value layout shared by compiled
// code and the runtime stubs.
//
// Layout (NaN-boxing with a 2^48 double offset):
//
//	0xFFFF_0000_xxxx_xxxx  int32
//	0x0001_... - 0xFFFE_...  double, stored as bits + 2^48
//	0x0000_0000_0000_0002  null
//	0x0000_0000_0000_0006  false (0x07 true)
//	0x0000_0000_0000_000A  undefined
//	0x0000_xxxx_xxxx_xxx0  cell: handle<<4 | kind
//	0                      empty (hole / no value)
package value

import (
	"math"
	"math/bits"
)

// Value is a tagged 64-bit JavaScript value.
type Value uint64

const (
	NumberMask        uint64 = 0xFFFF000000000000
	DoubleOffsetShift        = 48
	DoubleOffset      uint64 = 1 << DoubleOffsetShift

	TagOther     uint64 = 0x2
	TagBool      uint64 = 0x4
	TagUndefined uint64 = 0x8
	TagMask      uint64 = NumberMask | TagOther

	// AddressRotation is how far a native address is rotated right so that
	// its low bits land in the double range.
	AddressRotation = 64 - DoubleOffsetShift

	CellShift = 4
	CellKind  = 0xF
)

// Cell kinds.
const (
	KindObject = 0x0
	KindString = 0x8
)

const (
	Empty     Value = 0
	Null      Value = Value(TagOther)
	False     Value = Value(TagOther | TagBool)
	True      Value = Value(TagOther | TagBool | 1)
	Undefined Value = Value(TagOther | TagUndefined)
)

// Int32 boxes a small integer.
func Int32(i int32) Value {
	return Value(NumberMask | uint64(uint32(i)))
}

// Float64 boxes a number. Integral values that fit int32 (except -0) are
// stored as int32 so that compiled fast paths see them.
func Float64(f float64) Value {
	if i := int32(f); float64(i) == f && !(i == 0 && math.Signbit(f)) {
		return Int32(i)
	}
	return Double(f)
}

// Double boxes f as a double without int32 normalisation.
func Double(f float64) Value {
	if f != f {
		f = math.NaN()
	}
	return Value(math.Float64bits(f) + DoubleOffset)
}

// Bool boxes a boolean.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Object returns the cell value for an object handle.
func Object(handle uint32) Value {
	return Value(uint64(handle)<<CellShift | KindObject)
}

// String returns the cell value for a string handle.
func String(handle uint32) Value {
	return Value(uint64(handle)<<CellShift | KindString)
}

func (v Value) IsInt32() bool     { return uint64(v) >= NumberMask }
func (v Value) IsNumber() bool    { return uint64(v)&NumberMask != 0 }
func (v Value) IsDouble() bool    { return v.IsNumber() && !v.IsInt32() }
func (v Value) IsEmpty() bool     { return v == Empty }
func (v Value) IsNull() bool      { return v == Null }
func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsBool() bool      { return uint64(v)&^1 == uint64(False) }

// IsNullOrUndefined matches both null and undefined by masking the
// undefined tag bit.
func (v Value) IsNullOrUndefined() bool {
	return uint64(v)&^TagUndefined == uint64(Null)
}

// IsCell reports whether v references a heap cell.
func (v Value) IsCell() bool {
	return uint64(v)&TagMask == 0 && v != Empty
}

func (v Value) IsObject() bool { return v.IsCell() && uint64(v)&CellKind == KindObject }
func (v Value) IsString() bool { return v.IsCell() && uint64(v)&CellKind == KindString }

// Int32 returns the payload of an int32 value.
func (v Value) Int32() int32 { return int32(uint32(v)) }

// Float64 returns the payload of a double value.
func (v Value) Float64() float64 { return math.Float64frombits(uint64(v) - DoubleOffset) }

// Number returns the numeric payload of an int32 or double value.
func (v Value) Number() float64 {
	if v.IsInt32() {
		return float64(v.Int32())
	}
	return v.Float64()
}

// Bool returns the payload of a boolean value.
func (v Value) Bool() bool { return v == True }

// Handle returns the heap handle of a cell.
func (v Value) Handle() uint32 { return uint32(uint64(v) >> CellShift) }

// EncodeAddress turns a native code address into a value that the runtime
// sees as a double. The address is marked in bit 0 and rotated right so its
// low 16 bits become the top 16 bits of the word; addresses must be 2-byte
// aligned and must not end in 0xFFFE.
func EncodeAddress(addr uintptr) Value {
	return Value(bits.RotateLeft64(uint64(addr)|1, -AddressRotation))
}

// DecodeAddress reverses EncodeAddress.
func DecodeAddress(v Value) uintptr {
	return uintptr(bits.RotateLeft64(uint64(v), AddressRotation) &^ 1)
}
