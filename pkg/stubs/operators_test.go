package stubs

import (
	"errors"
	"math"
	"testing"

	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

func binary(t *testing.T, r *Realm, id jit.StubID, a, b value.Value) value.Value {
	t.Helper()
	v, err := r.Binary(nil, id, a, b)
	if err != nil {
		t.Fatalf("%s: %v", id, err)
	}
	return v
}

func TestArithmeticSlowPaths(t *testing.T) {
	r := NewRealm(Options{})
	i := value.Int32

	if got := binary(t, r, jit.StubBinaryAdd, i(math.MaxInt32), i(1)); got.Number() != 2147483648 || got.IsInt32() {
		t.Errorf("MaxInt32+1 = %v", got.Number())
	}
	if got := binary(t, r, jit.StubBinaryAdd, r.String("a"), i(1)); r.StringOf(got) != "a1" {
		t.Errorf("\"a\"+1 = %s", r.Display(got))
	}
	if got := binary(t, r, jit.StubBinaryAdd, value.True, value.Null); got != i(1) {
		t.Errorf("true+null = %s", r.Display(got))
	}
	if got := binary(t, r, jit.StubBinarySubtract, r.String("10"), i(4)); got != i(6) {
		t.Errorf("\"10\"-4 = %s", r.Display(got))
	}

	got := binary(t, r, jit.StubBinaryModulo, i(-1), i(-1))
	if got.IsInt32() || got.Float64() != 0 || !math.Signbit(got.Float64()) {
		t.Errorf("-1 %% -1 = %#x, want -0", uint64(got))
	}
	got = binary(t, r, jit.StubBinaryMultiply, i(0), i(-5))
	if got.IsInt32() || !math.Signbit(got.Float64()) {
		t.Errorf("0 * -5 = %#x, want -0", uint64(got))
	}
	if got := binary(t, r, jit.StubBinaryDivide, i(7), i(2)); got.Number() != 3.5 {
		t.Errorf("7/2 = %v", got.Number())
	}
	if got := binary(t, r, jit.StubBinaryDivide, i(1), i(0)); !math.IsInf(got.Number(), 1) {
		t.Errorf("1/0 = %v", got.Number())
	}

	if got := binary(t, r, jit.StubBinaryRShiftLogical, i(-1), i(0)); got.Number() != 4294967295 {
		t.Errorf("-1 >>> 0 = %v", got.Number())
	}
	if got := binary(t, r, jit.StubBinaryRShift, i(-8), i(33)); got != i(-4) {
		t.Errorf("-8 >> 33 = %s", r.Display(got))
	}
	if got := binary(t, r, jit.StubBinaryLShift, i(1), i(31)); got != i(math.MinInt32) {
		t.Errorf("1 << 31 = %s", r.Display(got))
	}
	if got := binary(t, r, jit.StubBinaryBitXor, value.Double(4294967295), i(1)); got != i(-2) {
		t.Errorf("4294967295 ^ 1 = %s", r.Display(got))
	}
}

func TestComparisons(t *testing.T) {
	r := NewRealm(Options{})
	i := value.Int32
	nan := value.Double(math.NaN())
	cases := []struct {
		id   jit.StubID
		a, b value.Value
		want bool
	}{
		{jit.StubBinaryLT, i(1), i(2), true},
		{jit.StubBinaryLT, r.String("10"), r.String("9"), true},
		{jit.StubBinaryLT, r.String("10"), i(9), false},
		{jit.StubBinaryLT, nan, i(1), false},
		{jit.StubBinaryGTE, nan, i(1), false},
		{jit.StubBinaryLTE, i(2), i(2), true},
		{jit.StubBinaryGT, value.Double(2.5), i(2), true},
		{jit.StubBinaryEQ, value.Null, value.Undefined, true},
		{jit.StubBinaryEQ, value.Null, i(0), false},
		{jit.StubBinaryEQ, r.String("1"), i(1), true},
		{jit.StubBinaryEQ, value.True, i(1), true},
		{jit.StubBinaryEQ, value.Double(1), i(1), true},
		{jit.StubBinaryEQ, nan, nan, false},
		{jit.StubBinaryStrictEQ, r.String("1"), i(1), false},
		{jit.StubBinaryStrictEQ, value.Double(math.Copysign(0, -1)), i(0), true},
		{jit.StubBinaryStrictEQ, r.String("ab"), r.String("a" + "b"), true},
		{jit.StubBinaryStrictNE, value.Undefined, value.Null, true},
		{jit.StubBinaryNE, value.Undefined, value.Null, false},
	}
	for _, c := range cases {
		got := binary(t, r, c.id, c.a, c.b)
		if got != value.Bool(c.want) {
			t.Errorf("%s(%s, %s) = %s, want %v", c.id, r.Display(c.a), r.Display(c.b), r.Display(got), c.want)
		}
	}
}

func TestInstanceofAndIn(t *testing.T) {
	r := NewRealm(Options{})
	typeError := r.Global("TypeError")
	errorCtor := r.Global("Error")
	exc, err := r.Call(nil, typeError, value.Undefined, r.String("boom"))
	if err != nil {
		t.Fatal(err)
	}
	if got := binary(t, r, jit.StubBinaryInstanceof, exc, errorCtor); got != value.True {
		t.Errorf("TypeError instance not instanceof Error")
	}
	if got := binary(t, r, jit.StubBinaryIn, r.String("message"), exc); got != value.True {
		t.Errorf("'message' in error = %s", r.Display(got))
	}
	if got := binary(t, r, jit.StubBinaryIn, r.String("toString"), exc); got != value.True {
		t.Errorf("inherited key not found by in")
	}
	if s := r.Display(exc); s != "TypeError: boom" {
		t.Errorf("Display = %q", s)
	}

	_, err = r.Binary(nil, jit.StubBinaryIn, r.String("x"), value.Int32(1))
	var thrown *jit.Exception
	if !errors.As(err, &thrown) {
		t.Fatalf("in on a number: err = %v", err)
	}
	if got := binary(t, r, jit.StubBinaryInstanceof, thrown.Value, typeError); got != value.True {
		t.Errorf("thrown value is not a TypeError: %s", thrown.Message)
	}
}

func TestUnary(t *testing.T) {
	r := NewRealm(Options{})
	unary := func(id jit.StubID, v value.Value) value.Value {
		t.Helper()
		res, err := r.Unary(nil, id, v)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		return res
	}
	if got := unary(jit.StubUnaryNegative, value.Int32(0)); got.IsInt32() || !math.Signbit(got.Float64()) {
		t.Errorf("-0 = %#x", uint64(got))
	}
	if got := unary(jit.StubUnaryNegative, value.Int32(math.MinInt32)); got.Number() != 2147483648 {
		t.Errorf("-MinInt32 = %v", got.Number())
	}
	if got := unary(jit.StubToNumber, r.String(" 12 ")); got != value.Int32(12) {
		t.Errorf("+\" 12 \" = %s", r.Display(got))
	}
	if got := unary(jit.StubUnaryBitNot, value.Double(1.5)); got != value.Int32(-2) {
		t.Errorf("~1.5 = %s", r.Display(got))
	}
	if got := unary(jit.StubTypeof, value.Null); r.StringOf(got) != "object" {
		t.Errorf("typeof null = %s", r.Display(got))
	}
	if got := unary(jit.StubIncrement, r.String("1")); got != value.Int32(2) {
		t.Errorf("++\"1\" = %s", r.Display(got))
	}
	if got := unary(jit.StubToPrimitiveAndToString, value.Double(0.5)); r.StringOf(got) != "0.5" {
		t.Errorf("String(0.5) = %s", r.Display(got))
	}
}

func TestObjectsAndArrays(t *testing.T) {
	r := NewRealm(Options{})
	a := r.NewArray(0)
	if err := r.putProperty(nil, a.Value(), "3", value.Int32(9), true); err != nil {
		t.Fatal(err)
	}
	n, _ := r.getProperty(nil, a.Value(), "length")
	if n != value.Int32(4) {
		t.Fatalf("length after a[3]= = %s", r.Display(n))
	}
	if v, _ := r.getProperty(nil, a.Value(), "1"); v != value.Undefined {
		t.Errorf("hole reads %s", r.Display(v))
	}
	if err := r.putProperty(nil, a.Value(), "length", value.Int32(1), true); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.getProperty(nil, a.Value(), "3"); v != value.Undefined {
		t.Errorf("truncated element still reads %s", r.Display(v))
	}

	o := r.NewObject()
	o.define("frozen", &Property{Value: value.Int32(1)})
	if err := r.putProperty(nil, o.Value(), "frozen", value.Int32(2), false); err != nil {
		t.Errorf("sloppy write to read-only: %v", err)
	}
	if err := r.putProperty(nil, o.Value(), "frozen", value.Int32(2), true); err == nil {
		t.Errorf("strict write to read-only succeeded")
	}
	if ok, _ := r.deleteProperty(o.Value(), "frozen", false); ok {
		t.Errorf("deleted a non-configurable property")
	}

	s := r.String("héllo")
	if v, _ := r.getProperty(nil, s, "length"); v != value.Int32(5) {
		t.Errorf("string length = %s", r.Display(v))
	}
	if v, _ := r.getProperty(nil, s, "1"); r.StringOf(v) != "é" {
		t.Errorf("s[1] = %s", r.Display(v))
	}
	if _, err := r.getProperty(nil, value.Null, "x"); err == nil {
		t.Errorf("null.x did not throw")
	}
}

func TestForInSkipsDeletedKeys(t *testing.T) {
	r := NewRealm(Options{})
	proto := r.NewObject()
	proto.define("inherited", dataProperty(value.Int32(0)))
	o := r.newObject(ClassObject, proto)
	o.define("a", dataProperty(value.Int32(1)))
	o.define("b", dataProperty(value.Int32(2)))
	o.define("hidden", &Property{Value: value.Int32(3)})

	it, err := r.forInSetup(o.Value())
	if err != nil {
		t.Fatal(err)
	}
	first := r.forInNext(it)
	o.remove("b")
	var keys []string
	for k := first; k != value.Empty; k = r.forInNext(it) {
		keys = append(keys, r.StringOf(k))
	}
	want := []string{"a", "inherited"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}
