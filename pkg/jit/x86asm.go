package jit

import (
	"encoding/binary"
	"fmt"
)

// x86-64 register encoding
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

// XMM registers share the 0-15 encoding space.
type Xmm byte

const (
	X0 Xmm = 0
	X1 Xmm = 1
)

// Cond is an x86 condition code, the low nibble of jcc/setcc/cmovcc.
type Cond byte

const (
	CondO  Cond = 0x0
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // unsigned <
	CondAE Cond = 0x3 // unsigned >=
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6
	CondA  Cond = 0x7
	CondS  Cond = 0x8
	CondNS Cond = 0x9
	CondL  Cond = 0xC // signed <
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// Invert returns the opposite condition.
func (c Cond) Invert() Cond { return c ^ 1 }

// Label is a position in the code buffer, bound once, referenced by any
// number of rel32 jumps and absolute address sites.
type Label int

type labelFixup struct {
	at    int // offset of the rel32 field
	label Label
}

// Assembler emits x86-64 machine code into a growable buffer. Jumps to
// labels are recorded as fixups and resolved in Finalize.
type Assembler struct {
	buf    []byte
	labels []int
	fixups []labelFixup
}

// NewAssembler creates an assembler with capacity for sizeHint bytes.
func NewAssembler(sizeHint int) *Assembler {
	return &Assembler{buf: make([]byte, 0, sizeHint)}
}

// Offset returns current write position
func (a *Assembler) Offset() int {
	return len(a.buf)
}

// Bytes returns the assembled code
func (a *Assembler) Bytes() []byte {
	return a.buf
}

func (a *Assembler) emit(bytes ...byte) {
	a.buf = append(a.buf, bytes...)
}

func (a *Assembler) emitUint64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

func (a *Assembler) emitInt32(v int32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

// NewLabel allocates an unbound label. Labels are numbered from zero in
// allocation order.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind places l at the current offset.
func (a *Assembler) Bind(l Label) {
	assert(a.labels[l] < 0, "label %d bound twice", l)
	a.labels[l] = len(a.buf)
}

// Bound reports whether l has been placed.
func (a *Assembler) Bound(l Label) bool { return a.labels[l] >= 0 }

// LabelOffset returns the buffer offset of a bound label.
func (a *Assembler) LabelOffset(l Label) int {
	assert(a.labels[l] >= 0, "label %d is not bound", l)
	return a.labels[l]
}

// LabelCount returns the number of labels allocated so far.
func (a *Assembler) LabelCount() int { return len(a.labels) }

func (a *Assembler) rel32(l Label) {
	a.fixups = append(a.fixups, labelFixup{at: len(a.buf), label: l})
	a.emitInt32(0)
}

// Jmp: jmp rel32 to label
func (a *Assembler) Jmp(l Label) {
	a.emit(0xE9)
	a.rel32(l)
}

// J: jcc rel32 to label
func (a *Assembler) J(c Cond, l Label) {
	a.emit(0x0F, 0x80|byte(c))
	a.rel32(l)
}

// Call: call rel32 to label
func (a *Assembler) Call(l Label) {
	a.emit(0xE8)
	a.rel32(l)
}

// MovRegAddress emits mov reg, imm64 with a zero placeholder and returns the
// offset of the immediate so that the caller can patch in an absolute
// address once the code has been placed.
func (a *Assembler) MovRegAddress(reg Reg) int {
	a.MovRegImm64(reg, 0)
	return len(a.buf) - 8
}

// Align pads with nops until the offset is a multiple of n.
func (a *Assembler) Align(n int) {
	for len(a.buf)%n != 0 {
		a.Nop()
	}
}

// resolve patches every recorded rel32 fixup.
func (a *Assembler) resolve() error {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return fmt.Errorf("jump at %#x to unbound label %d", f.at, f.label)
		}
		rel := int32(target - (f.at + 4))
		binary.LittleEndian.PutUint32(a.buf[f.at:], uint32(rel))
	}
	return nil
}

// rex builds REX prefix: 0100WRXB
// W=1 for 64-bit operand size
// R=1 if reg field uses R8-R15
// X=1 if SIB index uses R8-R15
// B=1 if rm field uses R8-R15
func rex(w, r, x, b bool) byte {
	var prefix byte = 0x40
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

// rexW returns REX.W prefix for 64-bit operations
func rexW(reg, rm Reg) byte {
	return rex(true, reg >= 8, false, rm >= 8)
}

// rex32 emits a REX prefix for a 32-bit operation only when an extended
// register is involved.
func (a *Assembler) rex32(reg, rm Reg) {
	if reg >= 8 || rm >= 8 {
		a.emit(rex(false, reg >= 8, false, rm >= 8))
	}
}

// modRM builds ModR/M byte: [mod:2][reg:3][rm:3]
// mod should be pre-shifted: 0x00=no disp, 0x40=disp8, 0x80=disp32, 0xC0=register
func modRM(mod byte, reg, rm Reg) byte {
	return mod | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// emitMemOperand emits ModR/M and displacement for [base + disp]
func (a *Assembler) emitMemOperand(reg, base Reg, disp int32) {
	if base == RSP || base == R12 {
		if disp == 0 {
			a.emit(modRM(0x00, reg, RSP), 0x24)
		} else if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, RSP), 0x24, byte(disp))
		} else {
			a.emit(modRM(0x80, reg, RSP), 0x24)
			a.emitInt32(disp)
		}
	} else if base == RBP || base == R13 {
		if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, base), byte(disp))
		} else {
			a.emit(modRM(0x80, reg, base))
			a.emitInt32(disp)
		}
	} else if disp == 0 {
		a.emit(modRM(0x00, reg, base))
	} else if disp >= -128 && disp <= 127 {
		a.emit(modRM(0x40, reg, base), byte(disp))
	} else {
		a.emit(modRM(0x80, reg, base))
		a.emitInt32(disp)
	}
}

// emitGroup emits a 64-bit group-1 ALU op (add/or/and/sub/xor/cmp) with an
// immediate, using the imm8 form when it fits.
func (a *Assembler) emitGroup(ext Reg, reg Reg, imm int32) {
	if imm >= -128 && imm <= 127 {
		a.emit(rexW(0, reg), 0x83, modRM(0xC0, ext, reg), byte(imm))
	} else {
		a.emit(rexW(0, reg), 0x81, modRM(0xC0, ext, reg))
		a.emitInt32(imm)
	}
}

// MovRegReg: mov dst, src (64-bit)
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x89, modRM(0xC0, src, dst))
}

// MovRegReg32: mov dst32, src32 (zero-extends)
func (a *Assembler) MovRegReg32(dst, src Reg) {
	a.rex32(src, dst)
	a.emit(0x89, modRM(0xC0, src, dst))
}

// MovRegImm64: mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) {
	// REX.W + B8+rd + imm64
	a.emit(rex(true, false, false, reg >= 8), 0xB8|byte(reg&7))
	a.emitUint64(imm)
}

// MovRegImm32: mov reg32, imm32 (zero-extends to 64-bit)
func (a *Assembler) MovRegImm32(reg Reg, imm uint32) {
	a.rex32(0, reg)
	a.emit(0xB8 | byte(reg&7))
	a.emitInt32(int32(imm))
}

// MovRegImm32SignExt: mov reg, imm32 (sign-extended to 64-bit)
func (a *Assembler) MovRegImm32SignExt(reg Reg, imm int32) {
	// REX.W + C7 /0 + imm32
	a.emit(rex(true, false, false, reg >= 8), 0xC7, modRM(0xC0, 0, reg))
	a.emitInt32(imm)
}

// MovRegValue loads a 64-bit constant using the shortest encoding.
func (a *Assembler) MovRegValue(reg Reg, v uint64) {
	switch {
	case v <= 0xFFFFFFFF:
		a.MovRegImm32(reg, uint32(v))
	case int64(v) >= -1<<31 && int64(v) < 1<<31:
		a.MovRegImm32SignExt(reg, int32(int64(v)))
	default:
		a.MovRegImm64(reg, v)
	}
}

// MovRegMem64: mov reg, [base + disp] (64-bit load)
func (a *Assembler) MovRegMem64(reg, base Reg, disp int32) {
	a.emit(rexW(reg, base), 0x8B)
	a.emitMemOperand(reg, base, disp)
}

// MovMemReg64: mov [base + disp], reg (64-bit store)
func (a *Assembler) MovMemReg64(base Reg, disp int32, reg Reg) {
	a.emit(rexW(reg, base), 0x89)
	a.emitMemOperand(reg, base, disp)
}

// LeaRegMem: lea reg, [base + disp]
func (a *Assembler) LeaRegMem(reg, base Reg, disp int32) {
	a.emit(rexW(reg, base), 0x8D)
	a.emitMemOperand(reg, base, disp)
}

// AddRegReg: add dst, src (64-bit)
func (a *Assembler) AddRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x01, modRM(0xC0, src, dst))
}

// AddRegImm32: add reg, imm32 (64-bit, sign-extended)
func (a *Assembler) AddRegImm32(reg Reg, imm int32) { a.emitGroup(0, reg, imm) }

// SubRegReg: sub dst, src (64-bit)
func (a *Assembler) SubRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x29, modRM(0xC0, src, dst))
}

// IMulRegReg: imul dst, src (64-bit signed multiply)
func (a *Assembler) IMulRegReg(dst, src Reg) {
	a.emit(rexW(dst, src), 0x0F, 0xAF, modRM(0xC0, dst, src))
}

// AndRegReg: and dst, src (64-bit)
func (a *Assembler) AndRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x21, modRM(0xC0, src, dst))
}

// AndRegImm32: and reg, imm32 (64-bit, sign-extended)
func (a *Assembler) AndRegImm32(reg Reg, imm int32) { a.emitGroup(4, reg, imm) }

// OrRegReg: or dst, src (64-bit)
func (a *Assembler) OrRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x09, modRM(0xC0, src, dst))
}

// OrRegImm32: or reg, imm32 (64-bit, sign-extended)
func (a *Assembler) OrRegImm32(reg Reg, imm int32) { a.emitGroup(1, reg, imm) }

// XorRegImm32: xor reg, imm32 (64-bit, sign-extended)
func (a *Assembler) XorRegImm32(reg Reg, imm int32) { a.emitGroup(6, reg, imm) }

// CmpRegReg: cmp left, right (64-bit)
func (a *Assembler) CmpRegReg(left, right Reg) {
	a.emit(rexW(right, left), 0x39, modRM(0xC0, right, left))
}

// CmpRegImm32: cmp reg, imm32 (64-bit, sign-extended)
func (a *Assembler) CmpRegImm32(reg Reg, imm int32) { a.emitGroup(7, reg, imm) }

// TestRegReg: test left, right (64-bit)
func (a *Assembler) TestRegReg(left, right Reg) {
	a.emit(rexW(right, left), 0x85, modRM(0xC0, right, left))
}

// RolRegImm8: rol reg, imm8 (64-bit)
func (a *Assembler) RolRegImm8(reg Reg, imm byte) {
	a.emit(rexW(0, reg), 0xC1, modRM(0xC0, 0, reg), imm)
}

// 32-bit variants; each writes the low half and zero-extends.

// AddRegReg32: add dst32, src32
func (a *Assembler) AddRegReg32(dst, src Reg) {
	a.rex32(src, dst)
	a.emit(0x01, modRM(0xC0, src, dst))
}

// SubRegReg32: sub dst32, src32
func (a *Assembler) SubRegReg32(dst, src Reg) {
	a.rex32(src, dst)
	a.emit(0x29, modRM(0xC0, src, dst))
}

// IMulRegReg32: imul dst32, src32
func (a *Assembler) IMulRegReg32(dst, src Reg) {
	a.rex32(dst, src)
	a.emit(0x0F, 0xAF, modRM(0xC0, dst, src))
}

// OrRegReg32: or dst32, src32
func (a *Assembler) OrRegReg32(dst, src Reg) {
	a.rex32(src, dst)
	a.emit(0x09, modRM(0xC0, src, dst))
}

// XorRegReg32: xor dst32, src32
func (a *Assembler) XorRegReg32(dst, src Reg) {
	a.rex32(src, dst)
	a.emit(0x31, modRM(0xC0, src, dst))
}

// CmpRegReg32: cmp left32, right32
func (a *Assembler) CmpRegReg32(left, right Reg) {
	a.rex32(right, left)
	a.emit(0x39, modRM(0xC0, right, left))
}

// CmpRegImm32x32: cmp reg32, imm32
func (a *Assembler) CmpRegImm32x32(reg Reg, imm int32) {
	a.rex32(0, reg)
	if imm >= -128 && imm <= 127 {
		a.emit(0x83, modRM(0xC0, 7, reg), byte(imm))
	} else {
		a.emit(0x81, modRM(0xC0, 7, reg))
		a.emitInt32(imm)
	}
}

// TestRegReg32: test left32, right32
func (a *Assembler) TestRegReg32(left, right Reg) {
	a.rex32(right, left)
	a.emit(0x85, modRM(0xC0, right, left))
}

// AddRegImm32x32: add reg32, imm32
func (a *Assembler) AddRegImm32x32(reg Reg, imm int32) {
	a.rex32(0, reg)
	if imm >= -128 && imm <= 127 {
		a.emit(0x83, modRM(0xC0, 0, reg), byte(imm))
	} else {
		a.emit(0x81, modRM(0xC0, 0, reg))
		a.emitInt32(imm)
	}
}

// NegReg32: neg reg32
func (a *Assembler) NegReg32(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xF7, modRM(0xC0, 3, reg))
}

// NotReg32: not reg32
func (a *Assembler) NotReg32(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xF7, modRM(0xC0, 2, reg))
}

// Shl32RegCL: shl reg32, cl
func (a *Assembler) Shl32RegCL(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xD3, modRM(0xC0, 4, reg))
}

// Shr32RegCL: shr reg32, cl
func (a *Assembler) Shr32RegCL(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xD3, modRM(0xC0, 5, reg))
}

// Sar32RegCL: sar reg32, cl
func (a *Assembler) Sar32RegCL(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xD3, modRM(0xC0, 7, reg))
}

// Cdq: cdq (sign-extend EAX to EDX:EAX)
func (a *Assembler) Cdq() {
	a.emit(0x99)
}

// IDiv32: idiv reg32 (signed divide EDX:EAX by reg)
func (a *Assembler) IDiv32(reg Reg) {
	a.rex32(0, reg)
	a.emit(0xF7, modRM(0xC0, 7, reg))
}

// MovsxdRegReg: movsxd dst64, src32 (sign-extend 32->64)
func (a *Assembler) MovsxdRegReg(dst, src Reg) {
	a.emit(rexW(dst, src), 0x63, modRM(0xC0, dst, src))
}

// MovzxRegReg8: movzx dst, src8 (zero-extend byte to 64-bit)
func (a *Assembler) MovzxRegReg8(dst, src Reg) {
	a.emit(rexW(dst, src), 0x0F, 0xB6, modRM(0xC0, dst, src))
}

// Setcc: set byte reg on condition
func (a *Assembler) Setcc(c Cond, reg Reg) {
	if reg >= RSP {
		a.emit(rex(false, false, false, reg >= 8))
	}
	a.emit(0x0F, 0x90|byte(c), modRM(0xC0, 0, reg))
}

// Cmovcc: cmovcc dst, src (64-bit)
func (a *Assembler) Cmovcc(c Cond, dst, src Reg) {
	a.emit(rexW(dst, src), 0x0F, 0x40|byte(c), modRM(0xC0, dst, src))
}

// Cvtsi2sd: cvtsi2sd xmm, reg64
func (a *Assembler) Cvtsi2sd(dst Xmm, src Reg) {
	a.emit(0xF2, rexW(Reg(dst), src), 0x0F, 0x2A, modRM(0xC0, Reg(dst), src))
}

// MovqRegXmm: movq reg64, xmm
func (a *Assembler) MovqRegXmm(dst Reg, src Xmm) {
	a.emit(0x66, rexW(Reg(src), dst), 0x0F, 0x7E, modRM(0xC0, Reg(src), dst))
}

// MovqXmmReg: movq xmm, reg64
func (a *Assembler) MovqXmmReg(dst Xmm, src Reg) {
	a.emit(0x66, rexW(Reg(dst), src), 0x0F, 0x6E, modRM(0xC0, Reg(dst), src))
}

// JmpReg: jmp reg
func (a *Assembler) JmpReg(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF, modRM(0xC0, 4, reg))
}

// CallReg: call reg
func (a *Assembler) CallReg(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF, modRM(0xC0, 2, reg))
}

// CallMem: call qword [base + disp]
func (a *Assembler) CallMem(base Reg, disp int32) {
	if base >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF)
	a.emitMemOperand(2, base, disp)
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// Push: push reg
func (a *Assembler) Push(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 | byte(reg&7))
}

// Pop: pop reg
func (a *Assembler) Pop(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 | byte(reg&7))
}

// Nop: nop
func (a *Assembler) Nop() {
	a.emit(0x90)
}

// Ud2: ud2, marks code that must never be reached
func (a *Assembler) Ud2() {
	a.emit(0x0F, 0x0B)
}
