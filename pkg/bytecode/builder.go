package bytecode

import (
	"fmt"
)

// Label names a bytecode position inside a Builder.
type Label int

// Operand is one operand of an instruction handed to Builder.Emit.
type Operand struct {
	kind  byte
	value int64
	a, b  Register
	label Label
}

func R(r Register) Operand                 { return Operand{kind: 'r', value: int64(r)} }
func Imm(i int64) Operand                  { return Operand{kind: 'i', value: i} }
func To(l Label) Operand                   { return Operand{kind: 'j', label: l} }
func Pack(a, b Register, c uint32) Operand { return Operand{kind: 's', a: a, b: b, value: int64(c)} }

type fixup struct {
	at    int // word index of the displacement
	start int // instruction start
	label Label
}

// Builder assembles one Code. Nested codes are built by child builders and
// attached with Child.
type Builder struct {
	code   *Code
	labels []int
	fixups []fixup
	names  map[string]uint32
	err    error
}

func NewBuilder(name string) *Builder {
	return &Builder{
		code:  &Code{Name: name},
		names: make(map[string]uint32),
	}
}

func (b *Builder) SetRegisters(n uint32) { b.code.RegisterCount = n }
func (b *Builder) SetParams(n uint32)    { b.code.Params = n }
func (b *Builder) SetStrict(strict bool) { b.code.Strict = strict }

// Offset returns the current word offset.
func (b *Builder) Offset() uint32 { return uint32(len(b.code.Data)) }

func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind places l at the current offset.
func (b *Builder) Bind(l Label) {
	if b.labels[l] >= 0 {
		b.fail(fmt.Errorf("label %d bound twice", l))
		return
	}
	b.labels[l] = len(b.code.Data)
}

// Name interns a symbol and returns its index.
func (b *Builder) Name(s string) uint32 {
	if i, ok := b.names[s]; ok {
		return i
	}
	i := uint32(len(b.code.Names))
	b.code.Names = append(b.code.Names, s)
	b.names[s] = i
	return i
}

// Constant appends a literal and returns its index. Equal literals share a slot.
func (b *Builder) Constant(c Constant) uint32 {
	for i, have := range b.code.Constants {
		if have == c {
			return uint32(i)
		}
	}
	b.code.Constants = append(b.code.Constants, c)
	return uint32(len(b.code.Constants) - 1)
}

func (b *Builder) Number(f float64) uint32 {
	return b.Constant(Constant{Kind: ConstantNumber, Number: f})
}

func (b *Builder) String(s string) uint32 {
	return b.Constant(Constant{Kind: ConstantString, Text: s})
}

// Child attaches a nested code and returns its index.
func (b *Builder) Child(c *Code) uint32 {
	b.code.Codes = append(b.code.Codes, c)
	return uint32(len(b.code.Codes) - 1)
}

// Emit appends one instruction. Operands must match the opcode format; name,
// constant and code operands take the index as an Imm.
func (b *Builder) Emit(op Opcode, operands ...Operand) {
	format := op.Format()
	if len(operands) != len(format) {
		b.fail(fmt.Errorf("%s takes %d operands, got %d", op, len(format), len(operands)))
		return
	}
	start := len(b.code.Data)
	b.code.Data = append(b.code.Data, Op(op))
	for i, f := range format {
		o := operands[i]
		switch f {
		case 'r':
			if o.kind != 'r' {
				b.fail(fmt.Errorf("%s operand %d must be a register", op, i))
				return
			}
			b.code.Data = append(b.code.Data, Reg(Register(o.value)))
		case 'j':
			if o.kind != 'j' {
				b.fail(fmt.Errorf("%s operand %d must be a label", op, i))
				return
			}
			b.fixups = append(b.fixups, fixup{at: len(b.code.Data), start: start, label: o.label})
			b.code.Data = append(b.code.Data, 0)
		case 's':
			if o.kind != 's' {
				b.fail(fmt.Errorf("%s operand %d must be a packed triple", op, i))
				return
			}
			b.code.Data = append(b.code.Data, SSW(o.a, o.b, uint32(o.value)))
		case 'i':
			b.code.Data = append(b.code.Data, I32(int32(o.value)))
		default:
			b.code.Data = append(b.code.Data, U32(uint32(o.value)))
		}
	}
}

// Catch registers a catch region [begin, end); the catch code starts at end.
func (b *Builder) Catch(begin, end Label, envLevel uint32) {
	b.code.Handlers = append(b.code.Handlers, Handler{
		Kind:            HandlerCatch,
		Begin:           uint32(begin),
		End:             uint32(end),
		DynamicEnvLevel: envLevel,
		Jump:            InvalidRegister,
		Flag:            InvalidRegister,
	})
}

// Finally registers a finally region; the finally block starts at end and
// receives the resume address in jump and the completion kind in flag.
func (b *Builder) Finally(begin, end Label, jump, flag Register, envLevel uint32) {
	b.code.Handlers = append(b.code.Handlers, Handler{
		Kind:            HandlerFinally,
		Begin:           uint32(begin),
		End:             uint32(end),
		DynamicEnvLevel: envLevel,
		Jump:            jump,
		Flag:            flag,
	})
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = fmt.Errorf("build %s: %w", b.code.Name, err)
	}
}

func (b *Builder) resolve(l Label) (uint32, error) {
	if int(l) >= len(b.labels) || b.labels[l] < 0 {
		return 0, fmt.Errorf("build %s: label %d never bound", b.code.Name, l)
	}
	return uint32(b.labels[l]), nil
}

// Build resolves labels and returns the finished code. Handler Begin and End
// fields hold labels until this point.
func (b *Builder) Build() (*Code, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target, err := b.resolve(f.label)
		if err != nil {
			return nil, err
		}
		b.code.Data[f.at] = Jump(int32(int(target) - f.start))
	}
	for i := range b.code.Handlers {
		h := &b.code.Handlers[i]
		begin, err := b.resolve(Label(h.Begin))
		if err != nil {
			return nil, err
		}
		end, err := b.resolve(Label(h.End))
		if err != nil {
			return nil, err
		}
		h.Begin, h.End = begin, end
	}
	if err := b.code.validateOne(); err != nil {
		return nil, err
	}
	return b.code, nil
}
