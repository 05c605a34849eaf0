package bytecode

import (
	"fmt"

	"jsjit/pkg/serializer"
	"jsjit/pkg/value"
)

// HandlerKind distinguishes catch and finally regions.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
)

func (k HandlerKind) String() string {
	if k == HandlerFinally {
		return "finally"
	}
	return "catch"
}

// Finally flag values stored in a handler's Flag register.
const (
	FinallyResume int32 = 0
	FinallyThrow  int32 = 1
)

// Handler describes one exception region. The protected range is
// [Begin, End); the handler code starts at End. NativeBegin and NativeEnd are
// written by the linker once the code has been placed.
type Handler struct {
	Kind            HandlerKind
	Begin           uint32
	End             uint32
	DynamicEnvLevel uint32
	Jump            Register
	Flag            Register

	NativeBegin uintptr `serialize:"-"`
	NativeEnd   uintptr `serialize:"-"`
}

// ConstantKind tags a literal in the constant table.
type ConstantKind uint8

const (
	ConstantNumber ConstantKind = iota
	ConstantString
	ConstantUndefined
	ConstantNull
	ConstantBool
)

// Constant is a literal as written by the producer. The runtime boxes the
// table into Code.Pool before the code is compiled.
type Constant struct {
	Kind   ConstantKind
	Number float64
	Text   string
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstantNumber:
		return fmt.Sprint(c.Number)
	case ConstantString:
		return fmt.Sprintf("%q", c.Text)
	case ConstantNull:
		return "null"
	case ConstantBool:
		if c.Number != 0 {
			return "true"
		}
		return "false"
	}
	return "undefined"
}

// Code is one compiled unit: a script body or function body.
type Code struct {
	Name          string
	Data          []Instruction
	Constants     []Constant
	Names         []string
	Codes         []*Code
	Handlers      []Handler
	Params        uint32
	RegisterCount uint32
	Strict        bool

	// Pool holds the boxed constants; len(Pool) == len(Constants) once the
	// runtime has prepared the code.
	Pool []value.Value `serialize:"-"`
	// ID is assigned by the runtime and names the code in instruction
	// pointers handed to stubs.
	ID uint32 `serialize:"-"`
	// Entry is the native entry point, published by the linker.
	Entry uintptr `serialize:"-"`
}

// Walk visits c and every nested code depth first, parents first.
func (c *Code) Walk(fn func(*Code)) {
	fn(c)
	for _, child := range c.Codes {
		child.Walk(fn)
	}
}

// Validate checks the instruction stream and the operand indices of c and
// all nested codes.
func (c *Code) Validate() error {
	var err error
	c.Walk(func(code *Code) {
		if err != nil {
			return
		}
		err = code.validateOne()
	})
	return err
}

func (c *Code) validateOne() error {
	if err := Validate(c.Data); err != nil {
		return fmt.Errorf("code %s: %w", c.Name, err)
	}
	for cur := NewCursor(c.Data); !cur.Done(); cur.Next() {
		op := cur.Opcode()
		for i, f := range op.Format() {
			w := cur.Operand(i + 1)
			switch f {
			case 'k':
				if int(w.U32()) >= len(c.Constants) {
					return fmt.Errorf("code %s: %s at %d: constant %d out of range", c.Name, op, cur.Offset(), w.U32())
				}
			case 'n':
				if int(w.U32()) >= len(c.Names) {
					return fmt.Errorf("code %s: %s at %d: name %d out of range", c.Name, op, cur.Offset(), w.U32())
				}
			case 'c':
				if int(w.U32()) >= len(c.Codes) {
					return fmt.Errorf("code %s: %s at %d: code %d out of range", c.Name, op, cur.Offset(), w.U32())
				}
			case 'r':
				if r := w.Reg(); r >= 0 && uint32(r) >= c.RegisterCount {
					return fmt.Errorf("code %s: %s at %d: register %s beyond frame size %d", c.Name, op, cur.Offset(), r, c.RegisterCount)
				}
			}
		}
	}
	for i, h := range c.Handlers {
		if h.Begin > h.End || int(h.End) > len(c.Data) {
			return fmt.Errorf("code %s: handler %d range [%d, %d) invalid", c.Name, i, h.Begin, h.End)
		}
	}
	return nil
}

// Encode serialises c and its nested codes into a program image.
func Encode(c *Code) []byte {
	return serializer.Serialize(c)
}

// Decode parses a program image written by Encode.
func Decode(data []byte) (*Code, error) {
	var c Code
	if err := serializer.Deserialize(data, &c); err != nil {
		return nil, fmt.Errorf("decode program image: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
