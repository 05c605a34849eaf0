package jit

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/errors"
	"jsjit/pkg/value"
)

const regions = `
function main regs=6
  LOAD_INT32 r0, 0
  LOAD_INT32 r1, 3
loop:
  IF_FALSE_BINARY_LT r0, r1, done
  INCREMENT r0
  JUMP_BY loop
done:
tryf:
  LOAD_FUNCTION r2, inner
try:
  THROW r0
catch:
  TRY_CATCH_SETUP r3, e
  JUMP_SUBROUTINE r4, r5, fin
  RETURN r3
fin:
  RETURN_SUBROUTINE r4, r5
  .catch try, catch
  .finally tryf, fin, jump=r4, flag=r5
  function inner params=1
    RETURN a0
  end
end
`

type traceEntry struct {
	code   string
	offset uint32
	op     bytecode.Opcode
	cached bytecode.Register
}

func TestCacheDroppedAtBlockEntries(t *testing.T) {
	code := mustParse(t, regions)
	var trace []traceEntry
	opts := DefaultOptions()
	opts.Trace = func(c *bytecode.Code, offset uint32, op bytecode.Opcode, cached bytecode.Register) {
		trace = append(trace, traceEntry{c.Name, offset, op, cached})
	}
	s := NewSession(opts)
	if err := s.Compile(code); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	targets := map[uint32]bool{}
	for _, off := range bytecode.JumpTargets(code) {
		targets[off] = true
	}
	for _, h := range code.Handlers {
		targets[h.Begin], targets[h.End] = true, true
	}
	checked := 0
	for _, e := range trace {
		if e.code != "main" || !targets[e.offset] {
			continue
		}
		checked++
		if e.cached != bytecode.InvalidRegister {
			t.Errorf("%s at %d: cache holds %s at a block entry", e.op, e.offset, e.cached)
		}
	}
	if checked == 0 {
		t.Fatal("no block entries traced")
	}
	// Straight-line code keeps the cache: the second LOAD_INT32 sees r0.
	if trace[1].offset != 3 || trace[1].cached != 0 {
		t.Errorf("second instruction trace = %+v, want r0 cached at 3", trace[1])
	}
	if trace[0].cached != bytecode.InvalidRegister {
		t.Errorf("function entry starts with %s cached", trace[0].cached)
	}
}

func TestEntryPublishedOnlyByLink(t *testing.T) {
	code := mustParse(t, regions)
	s := NewSession(DefaultOptions())
	if err := s.Compile(code); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, p := range s.Programs() {
		if p.Entry != 0 {
			t.Fatalf("%s has entry %#x before Link", p.Name, p.Entry)
		}
	}
	if got := len(s.Programs()); got != 2 || s.Programs()[0] != code {
		t.Fatalf("programs = %d, parent first = %v", got, s.Programs()[0] == code)
	}

	buf := &Buffer{Base: 0x400000}
	img, err := s.Link(buf)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	inner := code.Codes[0]
	if code.Entry == 0 || inner.Entry == 0 || code.Entry == inner.Entry {
		t.Fatalf("entries main=%#x inner=%#x", code.Entry, inner.Entry)
	}
	for _, p := range img.Programs {
		if p.Entry%16 != 0 {
			t.Errorf("%s entry %#x not aligned", p.Name, p.Entry)
		}
		if img.Lookup(p.Entry) != p {
			t.Errorf("Lookup(%s entry) = %v", p.Name, img.Lookup(p.Entry))
		}
	}
	if img.Lookup(img.EntryThunk) != nil {
		t.Errorf("entry thunk attributed to a program")
	}
	if !img.Contains(img.ReturnSite) || img.ReturnSite <= img.EntryThunk {
		t.Errorf("return site %#x outside the entry thunk", img.ReturnSite)
	}

	if _, err := s.Link(buf); !errors.IsInvariantError(err) {
		t.Errorf("second Link: %v", err)
	}
	if err := s.Compile(mustParse(t, regions)); !errors.IsInvariantError(err) {
		t.Errorf("Compile after Link: %v", err)
	}
}

func TestBufferKeepsEarlierImages(t *testing.T) {
	buf := &Buffer{Base: 0x400000}
	link := func() *Image {
		s := NewSession(DefaultOptions())
		if err := s.Compile(mustParse(t, regions)); err != nil {
			t.Fatal(err)
		}
		img, err := s.Link(buf)
		if err != nil {
			t.Fatalf("Link: %v", err)
		}
		return img
	}
	first := link()
	want := bytes.Clone(first.Code)
	for i := 0; i < 8; i++ {
		next := link()
		if next.Base < first.Base+uintptr(len(first.Code)) {
			t.Fatalf("image %d at %#x overlaps first image ending at %#x", i, next.Base, first.Base+uintptr(len(first.Code)))
		}
		if next.Base%16 != 0 {
			t.Errorf("image %d base %#x not aligned", i, next.Base)
		}
	}
	if !bytes.Equal(first.Code, want) {
		t.Fatalf("first image changed after later links")
	}
}

func TestHandlerRangesLinked(t *testing.T) {
	code := mustParse(t, regions)
	s := NewSession(DefaultOptions())
	if err := s.Compile(code); err != nil {
		t.Fatal(err)
	}
	img, err := s.Link(&Buffer{Base: 0x10000})
	if err != nil {
		t.Fatal(err)
	}
	if len(code.Handlers) != 2 {
		t.Fatalf("handlers = %d", len(code.Handlers))
	}
	for i, h := range code.Handlers {
		if h.NativeBegin == 0 || h.NativeBegin >= h.NativeEnd {
			t.Errorf("handler %d: native range [%#x, %#x)", i, h.NativeBegin, h.NativeEnd)
		}
		if img.Lookup(h.NativeBegin) != code || img.Lookup(h.NativeEnd) != code {
			t.Errorf("handler %d range leaves main", i)
		}
		if findHandler(code, h.NativeBegin) == nil {
			t.Errorf("handler %d not found from its own begin", i)
		}
		if got := findHandler(code, h.NativeEnd); got == &code.Handlers[i] {
			t.Errorf("handler %d covers its own handler code", i)
		}
	}
	// The catch region is nested in the finally region and listed first.
	catch, finally := code.Handlers[0], code.Handlers[1]
	if catch.Kind != bytecode.HandlerCatch || finally.Kind != bytecode.HandlerFinally {
		t.Fatalf("kinds = %s, %s", catch.Kind, finally.Kind)
	}
	if catch.NativeBegin < finally.NativeBegin || catch.NativeEnd > finally.NativeEnd {
		t.Errorf("catch [%#x, %#x) not inside finally [%#x, %#x)",
			catch.NativeBegin, catch.NativeEnd, finally.NativeBegin, finally.NativeEnd)
	}
	if got := findHandler(code, catch.NativeBegin); got != &code.Handlers[0] {
		t.Errorf("innermost handler not preferred")
	}
}

func TestResumeAddressesPatched(t *testing.T) {
	code := mustParse(t, regions)
	s := NewSession(DefaultOptions())
	if err := s.Compile(code); err != nil {
		t.Fatal(err)
	}
	img, err := s.Link(&Buffer{Base: 0x7f0000000000})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.addresses) != 1 {
		t.Fatalf("address sites = %d", len(s.addresses))
	}
	for site, l := range s.addresses {
		word := value.Value(binary.LittleEndian.Uint64(img.Code[site:]))
		if !word.IsDouble() {
			t.Errorf("encoded resume address %#x is not a double", uint64(word))
		}
		want := img.Base + uintptr(s.asm.LabelOffset(l))
		if got := value.DecodeAddress(word); got != want {
			t.Errorf("site %d decodes to %#x, want %#x", site, got, want)
		}
	}
}

func TestImageDisassembly(t *testing.T) {
	code := mustParse(t, regions)
	s := NewSession(DefaultOptions())
	if err := s.Compile(code); err != nil {
		t.Fatal(err)
	}
	img, err := s.Link(&Buffer{Base: 0x10000})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := img.Disassemble(&out); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	for _, want := range []string{"<entry thunk>:", "<stub thunk>:", "main:", "inner:", "main: catch 0 begin:", "main: finally 1 end:"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly lacks %q", want)
		}
	}
}
