package stubs

import (
	"math"
	"testing"

	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

func TestNumberToString(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{1.5, "1.5"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{1e20, "100000000000000000000"},
		{123456789012, "123456789012"},
		{1e-7, "1e-7"},
		{0.000001, "0.000001"},
		{1.25e-10, "1.25e-10"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{2147483648, "2147483648"},
	}
	for _, c := range cases {
		if got := NumberToString(c.in); got != c.want {
			t.Errorf("NumberToString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  ", 0},
		{"42", 42},
		{" -3.5 ", -3.5},
		{"+7", 7},
		{"1e3", 1000},
		{".5", 0.5},
		{"5.", 5},
		{"0x1F", 31},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e400", math.Inf(1)},
	}
	for _, c := range cases {
		if got := stringToNumber(c.in); got != c.want {
			t.Errorf("stringToNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"abc", "1e", "--1", "0x", "1_000", "inf", "e5", "."} {
		if got := stringToNumber(bad); !math.IsNaN(got) {
			t.Errorf("stringToNumber(%q) = %v, want NaN", bad, got)
		}
	}
}

func TestToInt32(t *testing.T) {
	cases := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{-1, -1},
		{2147483648, math.MinInt32},
		{4294967295, -1},
		{4294967296, 0},
		{-2147483649, math.MaxInt32},
		{3.9, 3},
		{-3.9, -3},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, c := range cases {
		if got := ToInt32(c.in); got != c.want {
			t.Errorf("ToInt32(%v) = %d, want %d", c.in, got, c.want)
		}
	}
	if got := ToUint32(-1); got != math.MaxUint32 {
		t.Errorf("ToUint32(-1) = %d", got)
	}
}

func TestStringsAreInterned(t *testing.T) {
	r := NewRealm(Options{})
	a, b := r.String("hello"), r.String("hel"+"lo")
	if a != b {
		t.Fatalf("equal strings boxed differently: %#x %#x", a, b)
	}
	if !a.IsString() || r.StringOf(a) != "hello" {
		t.Fatalf("bad string value %#x", a)
	}
	if utf16Length("a😀") != 3 {
		t.Errorf("utf16Length counts code units")
	}
	if s, ok := utf16At("héllo", 1); !ok || s != "é" {
		t.Errorf("utf16At = %q %v", s, ok)
	}
}

func TestToBooleanAndTypeof(t *testing.T) {
	r := NewRealm(Options{})
	truthy := []value.Value{value.True, value.Int32(-1), value.Double(0.5), r.String("0"), r.NewObject().Value()}
	falsy := []value.Value{value.False, value.Int32(0), value.Double(math.NaN()), value.Double(math.Copysign(0, -1)),
		r.String(""), value.Null, value.Undefined, value.Empty}
	for _, v := range truthy {
		if !r.ToBoolean(v) {
			t.Errorf("ToBoolean(%s) = false", r.Display(v))
		}
	}
	for _, v := range falsy {
		if r.ToBoolean(v) {
			t.Errorf("ToBoolean(%#x) = true", uint64(v))
		}
	}

	types := map[string]value.Value{
		"undefined": value.Undefined,
		"object":    value.Null,
		"boolean":   value.False,
		"number":    value.Double(1.5),
		"string":    r.String("x"),
		"function":  r.Global("print"),
	}
	for want, v := range types {
		if got := r.Typeof(v); got != want {
			t.Errorf("Typeof = %q, want %q", got, want)
		}
	}
}

func TestToPrimitiveUsesValueOf(t *testing.T) {
	r := NewRealm(Options{})
	o := r.NewObject()
	r.defineNative(o, "valueOf", 0, func(*Realm, *jit.Machine, value.Value, []value.Value) (value.Value, error) {
		return value.Int32(7), nil
	})
	n, err := r.ToNumber(nil, o.Value())
	if err != nil || n != 7 {
		t.Fatalf("ToNumber = %v, %v", n, err)
	}
	s, err := r.ToString(nil, o.Value())
	if err != nil || s != "[object Object]" {
		t.Fatalf("ToString = %q, %v", s, err)
	}
	a := r.NewArray(3)
	a.Elements[0], a.Elements[2] = value.Int32(1), r.String("x")
	if s, _ := r.ToString(nil, a.Value()); s != "1,,x" {
		t.Errorf("array ToString = %q", s)
	}
}
