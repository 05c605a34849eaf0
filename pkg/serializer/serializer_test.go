package serializer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type inner struct {
	Name  string
	Words []uint64
}

type record struct {
	ID      uint32
	Delta   int32
	Ratio   float64
	Flag    bool
	Blob    []byte
	Items   []inner
	Next    *inner
	Skipped uintptr `serialize:"-"`
}

func TestRecordRoundTrip(t *testing.T) {
	in := record{
		ID:      7,
		Delta:   -3,
		Ratio:   0.25,
		Flag:    true,
		Blob:    []byte{1, 2, 3},
		Items:   []inner{{Name: "a", Words: []uint64{1, 1 << 40}}, {Name: ""}},
		Next:    &inner{Name: "next"},
		Skipped: 99,
	}
	var out record
	if err := Deserialize(Serialize(&in), &out); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	in.Skipped = 0
	in.Items[1].Words = []uint64{}
	in.Next.Words = []uint64{}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGeneralNatural(t *testing.T) {
	for _, x := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<56 - 1, 1 << 56, ^uint64(0)} {
		enc := EncodeGeneralNatural(x)
		got, n, ok := DecodeGeneralNatural(enc)
		if !ok || got != x || n != len(enc) {
			t.Errorf("DecodeGeneralNatural(Encode(%d)) = %d, %d, %v", x, got, n, ok)
		}
	}
}

func TestTruncatedInput(t *testing.T) {
	data := Serialize(&inner{Name: "truncate-me", Words: []uint64{5}})
	var out inner
	if err := Deserialize(data[:len(data)-1], &out); err == nil {
		t.Fatalf("expected error for truncated input")
	}
}

func TestOversizedLength(t *testing.T) {
	huge := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if err := Deserialize(huge, &[]uint64{}); err == nil {
		t.Errorf("slice: expected error for oversized length")
	}
	var s string
	if err := Deserialize(huge, &s); err == nil {
		t.Errorf("string: expected error for oversized length")
	}
	// Prefix says 3 elements, only 2 bytes follow.
	if err := Deserialize([]byte{3, 1, 2}, &[]byte{}); err == nil {
		t.Errorf("bytes: expected error for short input")
	}
}

func TestSignedConversion(t *testing.T) {
	if got := UnsignedToSigned(4, SignedToUnsigned(4, -2)); got != -2 {
		t.Errorf("got %d, want -2", got)
	}
	if got := UnsignedToSigned(2, 0x7FFF); got != 0x7FFF {
		t.Errorf("got %d", got)
	}
}
