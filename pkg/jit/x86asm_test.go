package jit

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func decodeAll(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var out []x86asm.Inst
	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil {
			t.Fatalf("decode at %#x (% x): %v", pc, code[pc:], err)
		}
		out = append(out, inst)
		pc += inst.Len
	}
	return out
}

func TestEncodings(t *testing.T) {
	type mem struct {
		base x86asm.Reg
		disp int64
	}
	cases := []struct {
		name string
		emit func(a *Assembler)
		op   x86asm.Op
		args []any // x86asm.Reg or mem; nil entries are not checked
	}{
		{"mov rax, rbx", func(a *Assembler) { a.MovRegReg(RAX, RBX) }, x86asm.MOV, []any{x86asm.RAX, x86asm.RBX}},
		{"mov r12, rsi", func(a *Assembler) { a.MovRegReg(R12, RSI) }, x86asm.MOV, []any{x86asm.R12, x86asm.RSI}},
		{"mov r13, rdi", func(a *Assembler) { a.MovRegReg(R13, RDI) }, x86asm.MOV, []any{x86asm.R13, x86asm.RDI}},
		{"load register", func(a *Assembler) { a.MovRegMem64(RAX, R12, 0x48) }, x86asm.MOV, []any{x86asm.RAX, mem{x86asm.R12, 0x48}}},
		{"load this", func(a *Assembler) { a.MovRegMem64(RCX, R12, -8) }, x86asm.MOV, []any{x86asm.RCX, mem{x86asm.R12, -8}}},
		{"load far register", func(a *Assembler) { a.MovRegMem64(RDX, R12, 0x1000) }, x86asm.MOV, []any{x86asm.RDX, mem{x86asm.R12, 0x1000}}},
		{"store context", func(a *Assembler) { a.MovMemReg64(R13, ctxResult, RAX) }, x86asm.MOV, []any{mem{x86asm.R13, int64(ctxResult)}, x86asm.RAX}},
		{"load from rsp", func(a *Assembler) { a.MovRegMem64(R12, RSP, 0) }, x86asm.MOV, []any{x86asm.R12, mem{x86asm.RSP, 0}}},
		{"store via rdi", func(a *Assembler) { a.MovMemReg64(RDI, ctxArgs+16, RCX) }, x86asm.MOV, []any{mem{x86asm.RDI, int64(ctxArgs + 16)}, x86asm.RCX}},
		{"lea", func(a *Assembler) { a.LeaRegMem(RDX, R12, 96) }, x86asm.LEA, []any{x86asm.RDX, mem{x86asm.R12, 96}}},
		{"mov imm64", func(a *Assembler) { a.MovRegImm64(R15, 0xFFFF000000000000) }, x86asm.MOV, []any{x86asm.R15}},
		{"mov imm32", func(a *Assembler) { a.MovRegImm32(RSI, 7) }, x86asm.MOV, []any{x86asm.ESI}},
		{"add 32", func(a *Assembler) { a.AddRegReg32(RAX, RDX) }, x86asm.ADD, []any{x86asm.EAX, x86asm.EDX}},
		{"sub 32", func(a *Assembler) { a.SubRegReg32(RAX, RDX) }, x86asm.SUB, []any{x86asm.EAX, x86asm.EDX}},
		{"imul 32", func(a *Assembler) { a.IMulRegReg32(RAX, RDX) }, x86asm.IMUL, []any{x86asm.EAX, x86asm.EDX}},
		{"add 64", func(a *Assembler) { a.AddRegReg(RCX, R15) }, x86asm.ADD, []any{x86asm.RCX, x86asm.R15}},
		{"cmp mask", func(a *Assembler) { a.CmpRegReg(RAX, R15) }, x86asm.CMP, []any{x86asm.RAX, x86asm.R15}},
		{"and imm", func(a *Assembler) { a.AndRegImm32(RCX, -9) }, x86asm.AND, []any{x86asm.RCX}},
		{"cmp imm", func(a *Assembler) { a.CmpRegImm32(RAX, 0x1000) }, x86asm.CMP, []any{x86asm.RAX}},
		{"or reg", func(a *Assembler) { a.OrRegReg(RAX, R15) }, x86asm.OR, []any{x86asm.RAX, x86asm.R15}},
		{"xor 32", func(a *Assembler) { a.XorRegReg32(RAX, RAX) }, x86asm.XOR, []any{x86asm.EAX, x86asm.EAX}},
		{"test", func(a *Assembler) { a.TestRegReg(RAX, RAX) }, x86asm.TEST, []any{x86asm.RAX, x86asm.RAX}},
		{"rol", func(a *Assembler) { a.RolRegImm8(RAX, 16) }, x86asm.ROL, []any{x86asm.RAX}},
		{"neg 32", func(a *Assembler) { a.NegReg32(RAX) }, x86asm.NEG, []any{x86asm.EAX}},
		{"not 32", func(a *Assembler) { a.NotReg32(RAX) }, x86asm.NOT, []any{x86asm.EAX}},
		{"shl cl", func(a *Assembler) { a.Shl32RegCL(RAX) }, x86asm.SHL, []any{x86asm.EAX, x86asm.CL}},
		{"shr cl", func(a *Assembler) { a.Shr32RegCL(RAX) }, x86asm.SHR, []any{x86asm.EAX, x86asm.CL}},
		{"sar cl", func(a *Assembler) { a.Sar32RegCL(RAX) }, x86asm.SAR, []any{x86asm.EAX, x86asm.CL}},
		{"cdq", func(a *Assembler) { a.Cdq() }, x86asm.CDQ, nil},
		{"idiv", func(a *Assembler) { a.IDiv32(RCX) }, x86asm.IDIV, []any{x86asm.ECX}},
		{"movsxd", func(a *Assembler) { a.MovsxdRegReg(RAX, RAX) }, x86asm.MOVSXD, []any{x86asm.RAX, x86asm.EAX}},
		{"setl", func(a *Assembler) { a.Setcc(CondL, RAX) }, x86asm.SETL, []any{x86asm.AL}},
		{"movzx", func(a *Assembler) { a.MovzxRegReg8(RAX, RAX) }, x86asm.MOVZX, []any{x86asm.RAX, x86asm.AL}},
		{"cmovb", func(a *Assembler) { a.Cmovcc(CondB, RDX, RCX) }, x86asm.CMOVB, []any{x86asm.RDX, x86asm.RCX}},
		{"cvtsi2sd", func(a *Assembler) { a.Cvtsi2sd(X0, RAX) }, x86asm.CVTSI2SD, []any{x86asm.X0, x86asm.RAX}},
		{"movq out", func(a *Assembler) { a.MovqRegXmm(RAX, X0) }, x86asm.MOVQ, []any{x86asm.RAX, x86asm.X0}},
		{"movq in", func(a *Assembler) { a.MovqXmmReg(X1, RCX) }, x86asm.MOVQ, []any{x86asm.X1, x86asm.RCX}},
		{"jmp reg", func(a *Assembler) { a.JmpReg(RAX) }, x86asm.JMP, []any{x86asm.RAX}},
		{"call reg", func(a *Assembler) { a.CallReg(RDX) }, x86asm.CALL, []any{x86asm.RDX}},
		{"call entry", func(a *Assembler) { a.CallMem(R12, FrameEntry) }, x86asm.CALL, []any{mem{x86asm.R12, FrameEntry}}},
		{"push", func(a *Assembler) { a.Push(R12) }, x86asm.PUSH, []any{x86asm.R12}},
		{"pop", func(a *Assembler) { a.Pop(RCX) }, x86asm.POP, []any{x86asm.RCX}},
		{"ret", func(a *Assembler) { a.Ret() }, x86asm.RET, nil},
		{"ud2", func(a *Assembler) { a.Ud2() }, x86asm.UD2, nil},
	}
	for _, c := range cases {
		a := NewAssembler(16)
		c.emit(a)
		insts := decodeAll(t, a.Bytes())
		if len(insts) != 1 {
			t.Errorf("%s: decoded %d instructions from % x", c.name, len(insts), a.Bytes())
			continue
		}
		inst := insts[0]
		if inst.Op != c.op {
			t.Errorf("%s: op %v, want %v (% x)", c.name, inst.Op, c.op, a.Bytes())
			continue
		}
		for i, want := range c.args {
			switch want := want.(type) {
			case x86asm.Reg:
				if inst.Args[i] != want {
					t.Errorf("%s: arg %d = %v, want %v", c.name, i, inst.Args[i], want)
				}
			case mem:
				m, ok := inst.Args[i].(x86asm.Mem)
				if !ok || m.Base != want.base || m.Disp != want.disp {
					t.Errorf("%s: arg %d = %v, want [%v%+d]", c.name, i, inst.Args[i], want.base, want.disp)
				}
			}
		}
	}
}

func TestLabelsResolve(t *testing.T) {
	a := NewAssembler(64)
	fwd, back := a.NewLabel(), a.NewLabel()
	a.Bind(back)
	a.Nop()
	a.J(CondNE, fwd)
	a.Jmp(back)
	a.Nop()
	a.Bind(fwd)
	a.Ret()
	if err := a.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	insts := decodeAll(t, a.Bytes())
	// nop; jne fwd; jmp back; nop; ret
	if len(insts) != 5 {
		t.Fatalf("decoded %d instructions", len(insts))
	}
	if insts[1].Op != x86asm.JNE || insts[1].Args[0] != x86asm.Rel(insts[2].Len+1) {
		t.Errorf("jne = %v %v", insts[1].Op, insts[1].Args[0])
	}
	back32 := -(insts[0].Len + insts[1].Len + insts[2].Len)
	if insts[2].Op != x86asm.JMP || insts[2].Args[0] != x86asm.Rel(back32) {
		t.Errorf("jmp = %v %v, want rel %d", insts[2].Op, insts[2].Args[0], back32)
	}
}

func TestUnboundLabel(t *testing.T) {
	a := NewAssembler(16)
	a.Jmp(a.NewLabel())
	if err := a.resolve(); err == nil {
		t.Fatal("resolve accepted a jump to an unbound label")
	}
}

func TestMovRegAddressSite(t *testing.T) {
	a := NewAssembler(16)
	a.Nop()
	site := a.MovRegAddress(RAX)
	if site != a.Offset()-8 {
		t.Fatalf("site %d, offset %d", site, a.Offset())
	}
	insts := decodeAll(t, a.Bytes())
	if insts[1].Op != x86asm.MOV || insts[1].Args[0] != x86asm.RAX {
		t.Errorf("address site decodes as %v", insts[1])
	}
}
