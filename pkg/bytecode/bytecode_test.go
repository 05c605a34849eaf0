package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sample = `
; sum the arguments of inner until the limit
function main regs=6
  LOAD_INT32 r0, 0
  LOAD_INT32 r1, 10
  LOAD_CONST r2, "label, with comma"
loop:
  IF_FALSE_BINARY_LT r0, r1, done
  INCREMENT r0
  JUMP_BY loop
done:
  LOAD_FUNCTION r3, inner
  MV r4, r0
  CALL r5, r3, r4, 0
try:
  THROW r5
catch:
  TRY_CATCH_SETUP r5, e
  STORE_OBJECT_DATA r2, r5, 1, "x"
  RETURN r5
  .catch try, catch, level=0
  function inner params=1 strict
    LOAD_CONST r0, 1.5
    BINARY_ADD r0, r0, a0
    RETURN r0
  end
end
`

func TestParseSample(t *testing.T) {
	code, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if code.Name != "main" || code.RegisterCount != 6 {
		t.Fatalf("header: name %q regs %d", code.Name, code.RegisterCount)
	}
	if len(code.Codes) != 1 || code.Codes[0].Name != "inner" || !code.Codes[0].Strict {
		t.Fatalf("nested function not parsed: %+v", code.Codes)
	}
	// inner uses r0 only, so regs defaults to 1
	if code.Codes[0].RegisterCount != 1 || code.Codes[0].Params != 1 {
		t.Errorf("inner regs %d params %d", code.Codes[0].RegisterCount, code.Codes[0].Params)
	}
	if got := code.Constants[0]; got.Kind != ConstantString || got.Text != "label, with comma" {
		t.Errorf("string constant = %+v", got)
	}
	if len(code.Handlers) != 1 {
		t.Fatalf("handlers = %d", len(code.Handlers))
	}
	h := code.Handlers[0]
	if h.Kind != HandlerCatch || h.End <= h.Begin {
		t.Errorf("handler = %+v", h)
	}

	var ops []Opcode
	for cur := NewCursor(code.Data); !cur.Done(); cur.Next() {
		ops = append(ops, cur.Opcode())
		if cur.Opcode() == OpIfFalseBinaryLT {
			// the loop exit lands on LOAD_FUNCTION
			target := cur.JumpTarget()
			if code.Data[target].Opcode() != OpLoadFunction {
				t.Errorf("fused branch target %d holds %s", target, code.Data[target].Opcode())
			}
		}
	}
	if ops[len(ops)-1] != OpReturn {
		t.Errorf("last opcode %s", ops[len(ops)-1])
	}
}

func TestListingRoundTrip(t *testing.T) {
	code, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	again, err := Parse(Listing(code))
	if err != nil {
		t.Fatalf("Parse(Listing): %v\n%s", err, Listing(code))
	}
	if diff := cmp.Diff(code, again); diff != "" {
		t.Errorf("listing round trip (-want +got):\n%s", diff)
	}
}

func TestImageRoundTrip(t *testing.T) {
	code, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	decoded, err := Decode(Encode(code))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(code, decoded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("image round trip (-want +got):\n%s", diff)
	}
}

func TestBuilderJumps(t *testing.T) {
	b := NewBuilder("loop")
	b.SetRegisters(2)
	top := b.NewLabel()
	exit := b.NewLabel()
	b.Emit(OpLoadInt32, R(0), Imm(3))
	b.Bind(top)
	b.Emit(OpIfFalse, R(0), To(exit))
	b.Emit(OpDecrement, R(0))
	b.Emit(OpJumpBy, To(top))
	b.Bind(exit)
	b.Emit(OpReturn, R(0))
	code, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []uint32{3, 10}
	if diff := cmp.Diff(want, JumpTargets(code)); diff != "" {
		t.Errorf("jump targets (-want +got):\n%s", diff)
	}
	// JUMP_BY at 8 goes back to 3
	if d := code.Data[9].I32(); d != -5 {
		t.Errorf("backward displacement = %d, want -5", d)
	}
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder("bad")
	l := b.NewLabel()
	b.Emit(OpJumpBy, To(l))
	if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), "never bound") {
		t.Errorf("unbound label: err = %v", err)
	}

	b = NewBuilder("bad")
	b.Emit(OpMv, R(0))
	if _, err := b.Build(); err == nil {
		t.Errorf("expected operand count error")
	}

	b = NewBuilder("bad")
	b.SetRegisters(1)
	b.Emit(OpMv, R(0), R(4))
	if _, err := b.Build(); err == nil {
		t.Errorf("expected register range error")
	}
}

func TestValidateRejectsMidInstructionJump(t *testing.T) {
	data := []Instruction{Op(OpJumpBy), Jump(1), Op(OpNop)}
	if err := Validate(data); err == nil {
		t.Fatalf("jump into operand word accepted")
	}
	data = []Instruction{Op(OpJumpBy), Jump(3), Op(OpNop)}
	if err := Validate(data); err != nil {
		t.Fatalf("jump to end rejected: %v", err)
	}
}

func TestValidateRejectsWideOpcodeWord(t *testing.T) {
	data := []Instruction{Instruction(1<<32 | uint64(OpNop))}
	if err := Validate(data); err == nil {
		t.Fatalf("opcode word with high bits accepted")
	}
}

func TestPackedTriple(t *testing.T) {
	a, b, c := SSW(-1, 300, 1<<31).SSW()
	if a != -1 || b != 300 || c != 1<<31 {
		t.Errorf("SSW round trip = %d %d %d", a, b, c)
	}
}

func TestOpcodeTable(t *testing.T) {
	for op := Opcode(0); op < NumOpcodes; op++ {
		if op.String() == "" {
			t.Fatalf("opcode %d has no name", op)
		}
		if got, ok := LookupOpcode(op.String()); !ok || got != op {
			t.Errorf("LookupOpcode(%s) = %v, %v", op, got, ok)
		}
	}
	cmpOp, jumpIfTrue := OpIfFalseBinaryGTE.FusedComparison()
	if cmpOp != OpBinaryGTE || jumpIfTrue {
		t.Errorf("IF_FALSE_BINARY_GTE = %s %v", cmpOp, jumpIfTrue)
	}
	cmpOp, jumpIfTrue = OpIfTrueBinaryStrictNE.FusedComparison()
	if cmpOp != OpBinaryStrictNE || !jumpIfTrue {
		t.Errorf("IF_TRUE_BINARY_STRICT_NE = %s %v", cmpOp, jumpIfTrue)
	}
	if OpForInSetup.JumpOperand() != 3 || OpJumpBy.JumpOperand() != 1 || OpMv.IsJump() {
		t.Errorf("jump operand positions wrong")
	}
}
