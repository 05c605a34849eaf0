package stubs

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

// strings interns string values. Handle 0 is never used.
type stringTable struct {
	text  []string
	index map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{text: []string{""}, index: make(map[string]uint32)}
}

func (t *stringTable) intern(s string) value.Value {
	if h, ok := t.index[s]; ok {
		return value.String(h)
	}
	h := uint32(len(t.text))
	t.text = append(t.text, s)
	t.index[s] = h
	return value.String(h)
}

func (t *stringTable) get(v value.Value) string {
	return t.text[v.Handle()]
}

// String boxes s.
func (r *Realm) String(s string) value.Value { return r.strings.intern(s) }

// StringOf returns the text of a string value.
func (r *Realm) StringOf(v value.Value) string { return r.strings.get(v) }

// utf16Length is the length of s as the language counts it.
func utf16Length(s string) int {
	n := 0
	for _, c := range s {
		n += utf16.RuneLen(c)
	}
	return n
}

// utf16At returns the code unit at index i of s as a one-unit string.
func utf16At(s string, i int) (string, bool) {
	units := utf16.Encode([]rune(s))
	if i < 0 || i >= len(units) {
		return "", false
	}
	return string(utf16.Decode(units[i : i+1])), true
}

// Number boxes f, normalising integral values to int32.
func Number(f float64) value.Value { return value.Float64(f) }

// ToBoolean implements the language's truthiness.
func (r *Realm) ToBoolean(v value.Value) bool {
	switch {
	case v.IsBool():
		return v.Bool()
	case v.IsInt32():
		return v.Int32() != 0
	case v.IsNumber():
		f := v.Float64()
		return f != 0 && !math.IsNaN(f)
	case v.IsString():
		return r.StringOf(v) != ""
	case v.IsObject():
		return true
	}
	return false
}

// ToNumber converts a primitive or, through ToPrimitive, an object.
func (r *Realm) ToNumber(m *jit.Machine, v value.Value) (float64, error) {
	switch {
	case v.IsNumber():
		return v.Number(), nil
	case v.IsUndefined(), v.IsEmpty():
		return math.NaN(), nil
	case v.IsNull():
		return 0, nil
	case v.IsBool():
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case v.IsString():
		return stringToNumber(r.StringOf(v)), nil
	}
	p, err := r.ToPrimitive(m, v, hintNumber)
	if err != nil {
		return 0, err
	}
	return r.ToNumber(m, p)
}

// stringToNumber parses a numeric string literal: decimal with optional
// exponent, 0x hex, Infinity, surrounded by whitespace. Anything else is
// NaN.
func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 {
		return math.NaN()
	}
	if body == "Infinity" {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	if !isDecimalLiteral(body) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of range literals round to infinity.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func isDecimalLiteral(s string) bool {
	digits, dot, exp := 0, false, false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '.' && !dot && !exp:
			dot = true
		case (ch == 'e' || ch == 'E') && !exp && digits > 0:
			exp = true
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				i++
			}
			if i+1 >= len(s) {
				return false
			}
		default:
			return false
		}
	}
	return digits > 0
}

// NumberToString formats f the way the language prints numbers.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f < 0:
		return "-" + NumberToString(-f)
	}
	// Shortest round-trip digits and the decimal exponent n such that
	// f = 0.digits * 10^n.
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exponent, _ := strings.Cut(e, "e")
	digits := strings.Replace(mantissa, ".", "", 1)
	exp, _ := strconv.Atoi(exponent)
	k, n := len(digits), exp+1

	switch {
	case k <= n && n <= 21:
		return digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return "0." + strings.Repeat("0", -n) + digits
	}
	sign := "+"
	if n-1 < 0 {
		sign = "-"
	}
	out := digits[:1]
	if k > 1 {
		out += "." + digits[1:]
	}
	return out + "e" + sign + strconv.Itoa(abs(n-1))
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// ToString converts v to a Go string, calling toString/valueOf on objects.
func (r *Realm) ToString(m *jit.Machine, v value.Value) (string, error) {
	switch {
	case v.IsString():
		return r.StringOf(v), nil
	case v.IsNumber():
		return NumberToString(v.Number()), nil
	case v.IsUndefined(), v.IsEmpty():
		return "undefined", nil
	case v.IsNull():
		return "null", nil
	case v.IsBool():
		if v.Bool() {
			return "true", nil
		}
		return "false", nil
	}
	p, err := r.ToPrimitive(m, v, hintString)
	if err != nil {
		return "", err
	}
	return r.ToString(m, p)
}

// ToInt32 and ToUint32 follow the modular conversions of the bit operators.
func ToInt32(f float64) int32 { return int32(ToUint32(f)) }

func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return uint32(f)
}

type hint int

const (
	hintDefault hint = iota
	hintNumber
	hintString
)

// ToPrimitive calls valueOf/toString as the hint orders them and falls back
// to the built-in string form of the object's class.
func (r *Realm) ToPrimitive(m *jit.Machine, v value.Value, h hint) (value.Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	obj := r.object(v)
	order := []string{"valueOf", "toString"}
	if h == hintString {
		order = []string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn, err := r.getProperty(m, v, name)
		if err != nil {
			return 0, err
		}
		if !r.isCallable(fn) {
			continue
		}
		res, err := r.call(m, fn, v, nil)
		if err != nil {
			return 0, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	if h != hintString && obj.Class == ClassObject && obj.Primitive != value.Empty {
		return obj.Primitive, nil
	}
	return r.String(r.defaultString(m, obj)), nil
}

// Typeof returns the typeof string of v.
func (r *Realm) Typeof(v value.Value) string {
	switch {
	case v.IsUndefined(), v.IsEmpty():
		return "undefined"
	case v.IsNull():
		return "object"
	case v.IsBool():
		return "boolean"
	case v.IsNumber():
		return "number"
	case v.IsString():
		return "string"
	case r.isCallable(v):
		return "function"
	}
	return "object"
}

// Display renders v without running any script code, for messages.
func (r *Realm) Display(v value.Value) string {
	switch {
	case v.IsString():
		return r.StringOf(v)
	case v.IsObject():
		return r.defaultString(nil, r.object(v))
	}
	s, _ := r.ToString(nil, v)
	return s
}
