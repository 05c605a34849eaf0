// Package serializer is a reflection-driven binary codec used for program
// images. Integers are fixed-width little endian, collection lengths use the
// compact general-natural encoding, struct fields are written in order.
// Fields tagged `serialize:"-"` are runtime-only and skipped.
package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"reflect"
)

// Serialize accepts an arbitrary value or pointer and returns its []byte representation.
func Serialize(v any) []byte {
	val := reflect.ValueOf(v)

	if val.Kind() == reflect.Ptr && !val.IsNil() {
		val = val.Elem()
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4096))
	serializeValue(val, buf)

	return buf.Bytes()
}

// Deserialize decodes data into target, which must be a non-nil pointer.
func Deserialize(data []byte, target any) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("deserialize target must be a non-nil pointer")
	}

	buf := bytes.NewBuffer(data)
	if err := deserializeValue(val.Elem(), buf); err != nil {
		return err
	}

	if buf.Len() > 0 {
		return fmt.Errorf("extra %d bytes left after deserialization", buf.Len())
	}

	return nil
}

func skipped(f reflect.StructField) bool {
	return f.Tag.Get("serialize") == "-" || !f.IsExported()
}

func serializeValue(v reflect.Value, buf *bytes.Buffer) {
	typ := v.Type()

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			buf.WriteByte(0)
			return
		}
		buf.WriteByte(1)
		serializeValue(v.Elem(), buf)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if skipped(typ.Field(i)) {
				continue
			}
			serializeValue(v.Field(i), buf)
		}

	case reflect.Array, reflect.Slice:
		serializeSlice(v, buf)

	case reflect.String:
		s := v.String()
		buf.Write(EncodeGeneralNatural(uint64(len(s))))
		buf.WriteString(s)

	case reflect.Bool:
		if v.Bool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case reflect.Float64:
		buf.Write(EncodeLittleEndian(8, math.Float64bits(v.Float())))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		l := int(typ.Size())
		buf.Write(EncodeLittleEndian(l, SignedToUnsigned(l, v.Int())))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.Write(EncodeLittleEndian(int(typ.Size()), v.Uint()))

	default:
		panic(fmt.Sprintf("unsupported kind: %s", v.Kind()))
	}
}

func deserializeValue(v reflect.Value, buf *bytes.Buffer) error {
	vType := v.Type()

	switch v.Kind() {
	case reflect.Ptr:
		b, err := buf.ReadByte()
		if err != nil {
			return fmt.Errorf("failed to read pointer tag: %w", err)
		}
		if b == 0 {
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(vType.Elem()))
		}
		return deserializeValue(v.Elem(), buf)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if skipped(vType.Field(i)) {
				continue
			}
			if err := deserializeValue(v.Field(i), buf); err != nil {
				return fmt.Errorf("failed to deserialize field %s: %w", vType.Field(i).Name, err)
			}
		}
		return nil

	case reflect.Array, reflect.Slice:
		return deserializeSlice(v, buf)

	case reflect.String:
		n, err := readLength(buf)
		if err != nil {
			return err
		}
		if n > buf.Len() {
			return fmt.Errorf("string length %d exceeds remaining %d bytes", n, buf.Len())
		}
		v.SetString(string(buf.Next(n)))
		return nil

	case reflect.Bool:
		b, err := buf.ReadByte()
		if err != nil {
			return fmt.Errorf("failed to read bool: %w", err)
		}
		v.SetBool(b != 0)
		return nil

	case reflect.Float64:
		x, err := readFixed(buf, 8)
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(x))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		l := int(vType.Size())
		x, err := readFixed(buf, l)
		if err != nil {
			return err
		}
		v.SetInt(UnsignedToSigned(l, x))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x, err := readFixed(buf, int(vType.Size()))
		if err != nil {
			return err
		}
		v.SetUint(x)
		return nil

	default:
		return fmt.Errorf("unsupported kind for deserialization: %s", v.Kind())
	}
}

func readFixed(buf *bytes.Buffer, l int) (uint64, error) {
	var b [8]byte
	if n, _ := buf.Read(b[:l]); n != l {
		return 0, fmt.Errorf("failed to read %d-byte integer", l)
	}
	return DecodeLittleEndian(b[:l]), nil
}

func readLength(buf *bytes.Buffer) (int, error) {
	x, n, ok := DecodeGeneralNatural(buf.Bytes())
	if !ok {
		return 0, fmt.Errorf("failed to decode length")
	}
	buf.Next(n)
	if x > uint64(buf.Len()) {
		return 0, fmt.Errorf("length %d exceeds input", x)
	}
	return int(x), nil
}

// serializeSlice writes a length prefix for slices (not arrays), then the
// elements. Byte slices are written in bulk.
func serializeSlice(v reflect.Value, buf *bytes.Buffer) {
	if v.Kind() == reflect.Slice {
		buf.Write(EncodeGeneralNatural(uint64(v.Len())))
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf.Write(v.Bytes())
			return
		}
	}
	for i := 0; i < v.Len(); i++ {
		serializeValue(v.Index(i), buf)
	}
}

func deserializeSlice(v reflect.Value, buf *bytes.Buffer) error {
	length := v.Len()

	if v.Kind() == reflect.Slice {
		n, err := readLength(buf)
		if err != nil {
			return fmt.Errorf("failed to decode slice length: %w", err)
		}
		// Every element takes at least one byte.
		if n > buf.Len() {
			return fmt.Errorf("slice length %d exceeds remaining %d bytes", n, buf.Len())
		}
		length = n
		v.Set(reflect.MakeSlice(v.Type(), length, length))

		if v.Type().Elem().Kind() == reflect.Uint8 {
			copy(v.Bytes(), buf.Next(length))
			return nil
		}
	}

	for i := 0; i < length; i++ {
		if err := deserializeValue(v.Index(i), buf); err != nil {
			return fmt.Errorf("failed to deserialize element %d: %w", i, err)
		}
	}
	return nil
}

// EncodeGeneralNatural encodes a uint64 using the compact encoding format.
// It follows three cases:
//  1. x == 0: output a single 0x00 octet.
//  2. x fits in a computed header + remainder format.
//  3. Otherwise, output 0xFF followed by x as 8 little-endian octets.
func EncodeGeneralNatural(x uint64) []byte {
	if x == 0 {
		return []byte{0x00}
	}

	// l = floor(log2(x)/7)
	l := uint((bits.Len64(x) - 1) / 7)

	if l < 8 {
		header := (1 << 8) - (1 << (8 - l)) + (x >> (8 * l))
		result := []byte{byte(header)}
		if l > 0 {
			remainder := x & ((uint64(1) << (8 * l)) - 1)
			result = append(result, EncodeLittleEndian(int(l), remainder)...)
		}
		return result
	}

	result := make([]byte, 9)
	result[0] = 0xFF
	binary.LittleEndian.PutUint64(result[1:], x)
	return result
}

// DecodeGeneralNatural decodes the prefix of p written by EncodeGeneralNatural
// and reports how many bytes it consumed.
func DecodeGeneralNatural(p []byte) (x uint64, n int, ok bool) {
	if len(p) == 0 {
		return 0, 0, false
	}

	header := p[0]
	if header == 0x00 {
		return 0, 1, true
	}
	if header == 0xFF {
		if len(p) < 9 {
			return 0, 0, false
		}
		return binary.LittleEndian.Uint64(p[1:9]), 9, true
	}

	l := bits.LeadingZeros8(^header)
	base := byte(int(1<<8) - (1 << (8 - l)))
	high := uint64(header - base)
	if len(p) < 1+l {
		return 0, 0, false
	}
	remainder := DecodeLittleEndian(p[1 : 1+l])
	return (high << (8 * l)) | remainder, 1 + l, true
}

func EncodeLittleEndian(octets int, x uint64) []byte {
	result := make([]byte, octets)
	for i := 0; i < octets; i++ {
		result[i] = byte(x)
		x >>= 8
	}
	return result
}

func DecodeLittleEndian(b []byte) uint64 {
	var x uint64
	for i, v := range b {
		x |= uint64(v) << (8 * i)
	}
	return x
}

// UnsignedToSigned reinterprets the low 8*octets bits of x as two's complement.
func UnsignedToSigned(octets int, x uint64) int64 {
	shift := 64 - 8*octets
	return int64(x<<shift) >> shift
}

// SignedToUnsigned truncates a to 8*octets bits.
func SignedToUnsigned(octets int, a int64) uint64 {
	if octets >= 8 {
		return uint64(a)
	}
	return uint64(a) & (uint64(1)<<(8*octets) - 1)
}
