package bytecode

import (
	"fmt"
	"math"
)

// Instruction is one word of the instruction stream: either an opcode word
// or one of the operand words that follow it.
type Instruction uint64

// Register indexes a frame slot. Non-negative registers live after the frame
// header; ThisRegister and argument registers live below it.
type Register int32

const (
	ThisRegister    Register = -1
	InvalidRegister Register = math.MinInt32
)

// ArgRegister returns the register holding formal argument i.
func ArgRegister(i int) Register { return Register(-2 - i) }

func (r Register) String() string {
	switch {
	case r == InvalidRegister:
		return "r?"
	case r == ThisRegister:
		return "this"
	case r < 0:
		return fmt.Sprintf("a%d", -2-int(r))
	}
	return fmt.Sprintf("r%d", int(r))
}

func Op(op Opcode) Instruction            { return Instruction(op) }
func Reg(r Register) Instruction          { return Instruction(uint32(r)) }
func I32(i int32) Instruction             { return Instruction(uint32(i)) }
func U32(u uint32) Instruction            { return Instruction(u) }
func Jump(displacement int32) Instruction { return Instruction(uint32(displacement)) }

// SSW packs a (register, register, unsigned offset) triple into one word.
func SSW(a, b Register, c uint32) Instruction {
	return Instruction(uint64(uint16(int16(a))) | uint64(uint16(int16(b)))<<16 | uint64(c)<<32)
}

func (w Instruction) Opcode() Opcode { return Opcode(w) }
func (w Instruction) Reg() Register  { return Register(int32(uint32(w))) }
func (w Instruction) I32() int32     { return int32(uint32(w)) }
func (w Instruction) U32() uint32    { return uint32(w) }

// SSW unpacks a word written by SSW.
func (w Instruction) SSW() (Register, Register, uint32) {
	return Register(int16(uint16(w))), Register(int16(uint16(w >> 16))), uint32(w >> 32)
}

// Cursor walks an instruction stream one instruction at a time using the
// opcode length table.
type Cursor struct {
	data []Instruction
	pos  uint32
}

func NewCursor(data []Instruction) Cursor { return Cursor{data: data} }

func (c *Cursor) Done() bool     { return int(c.pos) >= len(c.data) }
func (c *Cursor) Offset() uint32 { return c.pos }
func (c *Cursor) Opcode() Opcode { return c.data[c.pos].Opcode() }
func (c *Cursor) Length() uint32 { return c.Opcode().Length() }

// Operand returns operand word i (1-based, matching the format index).
func (c *Cursor) Operand(i int) Instruction { return c.data[int(c.pos)+i] }

// Words returns the whole current instruction.
func (c *Cursor) Words() []Instruction {
	return c.data[c.pos : c.pos+c.Length()]
}

// JumpTarget returns the absolute word offset the current instruction jumps to.
func (c *Cursor) JumpTarget() uint32 {
	return uint32(int64(c.pos) + int64(c.Operand(c.Opcode().JumpOperand()).I32()))
}

// Next advances past the current instruction.
func (c *Cursor) Next() { c.pos += c.Length() }

// Validate checks that every instruction decodes, fits inside the stream and
// jumps to an instruction boundary or the end of the stream.
func Validate(data []Instruction) error {
	starts := make(map[uint32]bool)
	var jumps [][2]uint32
	for c := NewCursor(data); !c.Done(); c.Next() {
		op := c.Opcode()
		if !op.Valid() || uint64(data[c.Offset()]) > 0xFFFF {
			return fmt.Errorf("invalid opcode %d at %d", uint64(data[c.Offset()]), c.Offset())
		}
		if int(c.Offset()+op.Length()) > len(data) {
			return fmt.Errorf("%s at %d runs past the end of the stream", op, c.Offset())
		}
		starts[c.Offset()] = true
		if op.IsJump() {
			jumps = append(jumps, [2]uint32{c.Offset(), c.JumpTarget()})
		}
	}
	starts[uint32(len(data))] = true
	for _, j := range jumps {
		if !starts[j[1]] {
			return fmt.Errorf("jump at %d targets %d, which is not an instruction boundary", j[0], j[1])
		}
	}
	return nil
}
