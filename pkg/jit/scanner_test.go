package jit

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/errors"
)

const loopWithCatch = `
function main regs=4
  LOAD_INT32 r0, 0
  LOAD_INT32 r1, 10
loop:
  IF_FALSE_BINARY_LT r0, r1, done
  INCREMENT r0
  JUMP_BY loop
done:
  IF_TRUE r0, try
  NOP
try:
  THROW r0
catch:
  TRY_CATCH_SETUP r2, e
  RETURN r2
  .catch try, catch
end
`

func mustParse(t *testing.T, src string) *bytecode.Code {
	t.Helper()
	code, err := bytecode.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return code
}

func TestScanJumpTargets(t *testing.T) {
	code := mustParse(t, loopWithCatch)
	asm := NewAssembler(0)
	table := ScanJumpTargets(code, asm)

	want := map[uint32]bool{}
	for _, off := range bytecode.JumpTargets(code) {
		want[off] = false
	}
	for _, h := range code.Handlers {
		want[h.Begin] = true
		want[h.End] = true
	}
	got := map[uint32]bool{}
	labels := map[Label]uint32{}
	for off, target := range table {
		got[off] = target.Handled
		if prev, dup := labels[target.Label]; dup {
			t.Errorf("label %d used for offsets %d and %d", target.Label, prev, off)
		}
		labels[target.Label] = off
		if asm.Bound(target.Label) {
			t.Errorf("label for %d bound by the scanner", off)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("jump table mismatch (-want +got):\n%s", diff)
	}
	// The handler begin is also an IF_TRUE target; it must come out handled.
	if !table[code.Handlers[0].Begin].Handled {
		t.Errorf("shared handler boundary lost its handled flag")
	}
}

func TestScanLabelsUniqueAcrossPrograms(t *testing.T) {
	asm := NewAssembler(0)
	a := ScanJumpTargets(mustParse(t, loopWithCatch), asm)
	b := ScanJumpTargets(mustParse(t, loopWithCatch), asm)
	seen := map[Label]bool{}
	for _, table := range []JumpTable{a, b} {
		for _, target := range table {
			if seen[target.Label] {
				t.Fatalf("label %d handed out twice", target.Label)
			}
			seen[target.Label] = true
		}
	}
	// A handler boundary that was first seen as a plain target orphans
	// one label, so the assembler may hold more labels than the tables use.
	if asm.LabelCount() < len(seen) {
		t.Errorf("assembler has %d labels, tables use %d", asm.LabelCount(), len(seen))
	}
}

func TestScanRejectsBrokenPrograms(t *testing.T) {
	cases := map[string]*bytecode.Code{
		"jump past end": {Name: "f", Data: []bytecode.Instruction{
			bytecode.Op(bytecode.OpJumpBy), bytecode.Jump(100),
		}},
		"truncated": {Name: "f", Data: []bytecode.Instruction{
			bytecode.Op(bytecode.OpMv), bytecode.Reg(0),
		}},
		"bad opcode": {Name: "f", Data: []bytecode.Instruction{
			bytecode.Op(bytecode.Opcode(0xFFFF)),
		}},
		"handler outside": {Name: "f", RegisterCount: 1, Data: []bytecode.Instruction{
			bytecode.Op(bytecode.OpNop),
		}, Handlers: []bytecode.Handler{{Begin: 0, End: 9}}},
	}
	names := make([]string, 0, len(cases))
	for name := range cases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := NewSession(DefaultOptions())
		err := s.Compile(cases[name])
		if !errors.IsInvariantError(err) {
			t.Errorf("%s: Compile returned %v, want an invariant error", name, err)
		}
	}
}
