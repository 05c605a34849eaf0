package stubs

import (
	"math"
	"strings"
	"unicode/utf16"

	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

// Binary evaluates a BINARY_* operator on arbitrary operands.
func (r *Realm) Binary(m *jit.Machine, id jit.StubID, a, b value.Value) (value.Value, error) {
	switch id {
	case jit.StubBinaryAdd:
		return r.add(m, a, b)
	case jit.StubBinaryLT:
		res, err := r.lessThan(m, a, b, true)
		return value.Bool(res == ternaryTrue), err
	case jit.StubBinaryGT:
		res, err := r.lessThan(m, b, a, false)
		return value.Bool(res == ternaryTrue), err
	case jit.StubBinaryLTE:
		res, err := r.lessThan(m, b, a, false)
		return value.Bool(res == ternaryFalse), err
	case jit.StubBinaryGTE:
		res, err := r.lessThan(m, a, b, true)
		return value.Bool(res == ternaryFalse), err
	case jit.StubBinaryEQ, jit.StubBinaryNE:
		eq, err := r.looseEquals(m, a, b)
		return value.Bool(eq == (id == jit.StubBinaryEQ)), err
	case jit.StubBinaryStrictEQ:
		return value.Bool(r.StrictEquals(a, b)), nil
	case jit.StubBinaryStrictNE:
		return value.Bool(!r.StrictEquals(a, b)), nil
	case jit.StubBinaryInstanceof:
		res, err := r.instanceOf(m, a, b)
		return value.Bool(res), err
	case jit.StubBinaryIn:
		if !b.IsObject() {
			return 0, r.typeError("cannot use 'in' operator to search for a key in %s", r.Display(b))
		}
		key, err := r.propertyKey(m, a)
		if err != nil {
			return 0, err
		}
		return value.Bool(r.hasProperty(r.object(b), key)), nil
	}

	x, err := r.ToNumber(m, a)
	if err != nil {
		return 0, err
	}
	y, err := r.ToNumber(m, b)
	if err != nil {
		return 0, err
	}
	switch id {
	case jit.StubBinarySubtract:
		return Number(x - y), nil
	case jit.StubBinaryMultiply:
		return Number(x * y), nil
	case jit.StubBinaryDivide:
		return Number(x / y), nil
	case jit.StubBinaryModulo:
		return Number(math.Mod(x, y)), nil
	case jit.StubBinaryLShift:
		return value.Int32(ToInt32(x) << (ToUint32(y) & 31)), nil
	case jit.StubBinaryRShift:
		return value.Int32(ToInt32(x) >> (ToUint32(y) & 31)), nil
	case jit.StubBinaryRShiftLogical:
		return Number(float64(ToUint32(x) >> (ToUint32(y) & 31))), nil
	case jit.StubBinaryBitAnd:
		return value.Int32(ToInt32(x) & ToInt32(y)), nil
	case jit.StubBinaryBitXor:
		return value.Int32(ToInt32(x) ^ ToInt32(y)), nil
	case jit.StubBinaryBitOr:
		return value.Int32(ToInt32(x) | ToInt32(y)), nil
	}
	return 0, r.internalError("%s is not a binary operator", id)
}

func (r *Realm) add(m *jit.Machine, a, b value.Value) (value.Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return Number(a.Number() + b.Number()), nil
	}
	pa, err := r.ToPrimitive(m, a, hintDefault)
	if err != nil {
		return 0, err
	}
	pb, err := r.ToPrimitive(m, b, hintDefault)
	if err != nil {
		return 0, err
	}
	if pa.IsString() || pb.IsString() {
		sa, err := r.ToString(m, pa)
		if err != nil {
			return 0, err
		}
		sb, err := r.ToString(m, pb)
		if err != nil {
			return 0, err
		}
		return r.String(sa + sb), nil
	}
	x, _ := r.ToNumber(m, pa)
	y, _ := r.ToNumber(m, pb)
	return Number(x + y), nil
}

type ternary uint8

const (
	ternaryFalse ternary = iota
	ternaryTrue
	ternaryUndefined
)

// lessThan is the abstract relational comparison a < b. leftFirst orders
// the ToPrimitive calls.
func (r *Realm) lessThan(m *jit.Machine, a, b value.Value, leftFirst bool) (ternary, error) {
	var pa, pb value.Value
	var err error
	if leftFirst {
		if pa, err = r.ToPrimitive(m, a, hintNumber); err != nil {
			return 0, err
		}
		if pb, err = r.ToPrimitive(m, b, hintNumber); err != nil {
			return 0, err
		}
	} else {
		if pb, err = r.ToPrimitive(m, b, hintNumber); err != nil {
			return 0, err
		}
		if pa, err = r.ToPrimitive(m, a, hintNumber); err != nil {
			return 0, err
		}
	}
	if pa.IsString() && pb.IsString() {
		if compareUTF16(r.StringOf(pa), r.StringOf(pb)) < 0 {
			return ternaryTrue, nil
		}
		return ternaryFalse, nil
	}
	x, _ := r.ToNumber(m, pa)
	y, _ := r.ToNumber(m, pb)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return ternaryUndefined, nil
	case x < y:
		return ternaryTrue, nil
	}
	return ternaryFalse, nil
}

// compareUTF16 orders strings by code units.
func compareUTF16(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return int(ua[i]) - int(ub[i])
		}
	}
	return len(ua) - len(ub)
}

// StrictEquals implements ===.
func (r *Realm) StrictEquals(a, b value.Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Number() == b.Number()
	}
	if a == value.Empty {
		a = value.Undefined
	}
	if b == value.Empty {
		b = value.Undefined
	}
	return a == b
}

// looseEquals implements ==.
func (r *Realm) looseEquals(m *jit.Machine, a, b value.Value) (bool, error) {
	for {
		switch {
		case a.IsNumber() && b.IsNumber(), r.sameType(a, b):
			return r.StrictEquals(a, b), nil
		case (a.IsNullOrUndefined() || a.IsEmpty()) && (b.IsNullOrUndefined() || b.IsEmpty()):
			return true, nil
		case a.IsNullOrUndefined() || a.IsEmpty() || b.IsNullOrUndefined() || b.IsEmpty():
			return false, nil
		case a.IsBool():
			a = boolNumber(a)
		case b.IsBool():
			b = boolNumber(b)
		case a.IsNumber() && b.IsString():
			b = Number(stringToNumber(r.StringOf(b)))
		case a.IsString() && b.IsNumber():
			a = Number(stringToNumber(r.StringOf(a)))
		case a.IsObject() && !b.IsObject():
			p, err := r.ToPrimitive(m, a, hintDefault)
			if err != nil {
				return false, err
			}
			a = p
		case b.IsObject() && !a.IsObject():
			p, err := r.ToPrimitive(m, b, hintDefault)
			if err != nil {
				return false, err
			}
			b = p
		default:
			return false, nil
		}
	}
}

func (r *Realm) sameType(a, b value.Value) bool {
	switch {
	case a.IsString():
		return b.IsString()
	case a.IsObject():
		return b.IsObject()
	case a.IsBool():
		return b.IsBool()
	}
	return false
}

func boolNumber(v value.Value) value.Value {
	if v.Bool() {
		return value.Int32(1)
	}
	return value.Int32(0)
}

func (r *Realm) instanceOf(m *jit.Machine, v, ctor value.Value) (bool, error) {
	if !r.isCallable(ctor) {
		return false, r.typeError("right-hand side of 'instanceof' is not callable")
	}
	if !v.IsObject() {
		return false, nil
	}
	proto, err := r.getProperty(m, ctor, "prototype")
	if err != nil {
		return false, err
	}
	if !proto.IsObject() {
		return false, r.typeError("function has non-object prototype in instanceof check")
	}
	target := r.object(proto)
	for o := r.object(v).Proto; o != nil; o = o.Proto {
		if o == target {
			return true, nil
		}
	}
	return false, nil
}

// Unary evaluates a one-operand conversion or operator stub.
func (r *Realm) Unary(m *jit.Machine, id jit.StubID, v value.Value) (value.Value, error) {
	switch id {
	case jit.StubUnaryNot:
		return value.Bool(!r.ToBoolean(v)), nil
	case jit.StubToBoolean:
		return value.Bool(r.ToBoolean(v)), nil
	case jit.StubTypeof:
		return r.String(r.Typeof(v)), nil
	case jit.StubToPrimitiveAndToString:
		p, err := r.ToPrimitive(m, v, hintDefault)
		if err != nil {
			return 0, err
		}
		s, err := r.ToString(m, p)
		if err != nil {
			return 0, err
		}
		return r.String(s), nil
	}
	n, err := r.ToNumber(m, v)
	if err != nil {
		return 0, err
	}
	switch id {
	case jit.StubUnaryPositive, jit.StubToNumber:
		return Number(n), nil
	case jit.StubUnaryNegative:
		return Number(-n), nil
	case jit.StubUnaryBitNot:
		return value.Int32(^ToInt32(n)), nil
	case jit.StubIncrement:
		return Number(n + 1), nil
	case jit.StubDecrement:
		return Number(n - 1), nil
	}
	return 0, r.internalError("%s is not a unary operator", id)
}

// concat joins the string forms of values.
func (r *Realm) concat(m *jit.Machine, values []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, v := range values {
		s, err := r.ToString(m, v)
		if err != nil {
			return 0, err
		}
		b.WriteString(s)
	}
	return r.String(b.String()), nil
}
