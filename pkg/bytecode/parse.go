package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads the textual listing form of a program:
//
//	function main regs=3
//	  LOAD_INT32 r0, 1
//	loop:
//	  IF_FALSE_BINARY_LT r0, r1, done
//	  ...
//	  .catch begin, end
//	  function inner params=1
//	    RETURN a0
//	  end
//	end
//
// Registers are rN, this or aN (argument N). Constant operands are number or
// quoted string literals, or true/false/null/undefined. Name operands are
// bare identifiers or quoted strings; code operands name a nested function.
// A missing regs= is computed from the highest register used.
func Parse(src string) (*Code, error) {
	p := &parser{lines: strings.Split(src, "\n")}
	line, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("parse: empty program")
	}
	fields := strings.Fields(line)
	if fields[0] != "function" {
		return nil, p.errorf("expected function, got %q", fields[0])
	}
	code, err := p.function(fields)
	if err != nil {
		return nil, err
	}
	if line, ok := p.next(); ok {
		return nil, p.errorf("unexpected %q after top-level function", line)
	}
	return code, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse: line %d: %s", p.pos, fmt.Sprintf(format, args...))
}

// next returns the next non-blank line with comments removed.
func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := stripComment(p.lines[p.pos])
		p.pos++
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case ';', '#':
			if !inQuote {
				return strings.TrimSpace(line[:i])
			}
		}
	}
	return strings.TrimSpace(line)
}

type codeRef struct {
	at   int
	name string
}

type handlerRef struct {
	finally    bool
	begin, end string
	jump, flag Register
	level      uint32
}

func (p *parser) function(header []string) (*Code, error) {
	if len(header) < 2 {
		return nil, p.errorf("function needs a name")
	}
	b := NewBuilder(header[1])
	regs := -1
	for _, attr := range header[2:] {
		key, val, _ := strings.Cut(attr, "=")
		switch key {
		case "strict":
			b.SetStrict(true)
		case "regs", "params":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, p.errorf("bad %s: %v", key, err)
			}
			if key == "regs" {
				regs = int(n)
			} else {
				b.SetParams(uint32(n))
			}
		default:
			return nil, p.errorf("unknown function attribute %q", attr)
		}
	}

	labels := make(map[string]Label)
	label := func(name string) Label {
		if l, ok := labels[name]; ok {
			return l
		}
		l := b.NewLabel()
		labels[name] = l
		return l
	}
	children := make(map[string]uint32)
	var refs []codeRef
	var handlers []handlerRef
	maxReg := -1

	for {
		line, ok := p.next()
		if !ok {
			return nil, p.errorf("function %s: missing end", header[1])
		}
		if line == "end" {
			break
		}
		if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t,") {
			b.Bind(label(strings.TrimSuffix(line, ":")))
			continue
		}
		mnemonic, rest := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			mnemonic, rest = line[:i], line[i+1:]
		}
		args, err := splitOperands(rest)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		switch {
		case mnemonic == "function":
			child, err := p.function(strings.Fields(line))
			if err != nil {
				return nil, err
			}
			children[child.Name] = b.Child(child)
			continue
		case mnemonic == ".catch" || mnemonic == ".finally":
			h, err := parseHandler(mnemonic == ".finally", args)
			if err != nil {
				return nil, p.errorf("%v", err)
			}
			handlers = append(handlers, h)
			continue
		}

		op, ok := LookupOpcode(mnemonic)
		if !ok {
			return nil, p.errorf("unknown opcode %q", mnemonic)
		}
		ops, err := p.operands(b, op, args, label, &refs, &maxReg)
		if err != nil {
			return nil, err
		}
		b.Emit(op, ops...)
	}

	for _, h := range handlers {
		if h.finally {
			b.Finally(label(h.begin), label(h.end), h.jump, h.flag, h.level)
			maxReg = max(maxReg, int(h.jump), int(h.flag))
		} else {
			b.Catch(label(h.begin), label(h.end), h.level)
		}
	}
	if regs < 0 {
		regs = maxReg + 1
	}
	b.SetRegisters(uint32(regs))
	code, err := b.Build()
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		idx, ok := children[ref.name]
		if !ok {
			return nil, fmt.Errorf("parse: function %s: no nested function %q", code.Name, ref.name)
		}
		code.Data[ref.at] = U32(idx)
	}
	return code, nil
}

func (p *parser) operands(b *Builder, op Opcode, args []string, label func(string) Label, refs *[]codeRef, maxReg *int) ([]Operand, error) {
	format := op.Format()
	want := len(format) + 2*strings.Count(format, "s")
	if len(args) != want {
		return nil, p.errorf("%s takes %d operands, got %d", op, want, len(args))
	}
	reg := func(s string) (Register, error) {
		r, err := ParseRegister(s)
		if err == nil && int(r) > *maxReg {
			*maxReg = int(r)
		}
		return r, err
	}

	var ops []Operand
	for i, f := range format {
		arg := args[0]
		args = args[1:]
		switch f {
		case 'r':
			r, err := reg(arg)
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			ops = append(ops, R(r))
		case 'j':
			ops = append(ops, To(label(arg)))
		case 's':
			a, err := reg(arg)
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			c, err := reg(args[0])
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			n, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			args = args[2:]
			ops = append(ops, Pack(a, c, uint32(n)))
		case 'i', 'u':
			n, err := strconv.ParseInt(arg, 0, 64)
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			ops = append(ops, Imm(n))
		case 'k':
			c, err := ParseConstant(arg)
			if err != nil {
				return nil, p.errorf("%s operand %d: %v", op, i, err)
			}
			ops = append(ops, Imm(int64(b.Constant(c))))
		case 'n':
			name := arg
			if strings.HasPrefix(arg, `"`) {
				s, err := strconv.Unquote(arg)
				if err != nil {
					return nil, p.errorf("%s operand %d: %v", op, i, err)
				}
				name = s
			}
			ops = append(ops, Imm(int64(b.Name(name))))
		case 'c':
			// Word position: opcode word plus preceding operands.
			*refs = append(*refs, codeRef{at: int(b.Offset()) + 1 + i, name: arg})
			ops = append(ops, Imm(0))
		}
	}
	return ops, nil
}

func parseHandler(finally bool, args []string) (handlerRef, error) {
	h := handlerRef{finally: finally, jump: InvalidRegister, flag: InvalidRegister}
	if len(args) < 2 {
		return h, fmt.Errorf("handler needs begin and end labels")
	}
	h.begin, h.end = args[0], args[1]
	for _, attr := range args[2:] {
		key, val, _ := strings.Cut(attr, "=")
		var err error
		switch key {
		case "jump":
			h.jump, err = ParseRegister(val)
		case "flag":
			h.flag, err = ParseRegister(val)
		case "level":
			var n uint64
			n, err = strconv.ParseUint(val, 10, 32)
			h.level = uint32(n)
		default:
			err = fmt.Errorf("unknown handler attribute %q", attr)
		}
		if err != nil {
			return h, err
		}
	}
	if finally && (h.jump == InvalidRegister || h.flag == InvalidRegister) {
		return h, fmt.Errorf(".finally needs jump= and flag= registers")
	}
	return h, nil
}

// splitOperands splits a comma separated operand list, keeping quoted
// strings intact.
func splitOperands(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && inQuote && i+1 < len(s):
			cur.WriteByte(ch)
			i++
			cur.WriteByte(s[i])
			continue
		case ch == '"':
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string in %q", s)
	}
	if last := strings.TrimSpace(cur.String()); last != "" || len(out) > 0 {
		out = append(out, last)
	}
	return out, nil
}

// ParseRegister parses rN, aN or this.
func ParseRegister(s string) (Register, error) {
	if s == "this" {
		return ThisRegister, nil
	}
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'a') {
		return 0, fmt.Errorf("bad register %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 15)
	if err != nil {
		return 0, fmt.Errorf("bad register %q", s)
	}
	if s[0] == 'a' {
		return ArgRegister(int(n)), nil
	}
	return Register(n), nil
}

// ParseConstant parses a literal operand.
func ParseConstant(s string) (Constant, error) {
	switch s {
	case "undefined":
		return Constant{Kind: ConstantUndefined}, nil
	case "null":
		return Constant{Kind: ConstantNull}, nil
	case "true":
		return Constant{Kind: ConstantBool, Number: 1}, nil
	case "false":
		return Constant{Kind: ConstantBool}, nil
	}
	if strings.HasPrefix(s, `"`) {
		text, err := strconv.Unquote(s)
		if err != nil {
			return Constant{}, fmt.Errorf("bad string literal %s: %w", s, err)
		}
		return Constant{Kind: ConstantString, Text: text}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Constant{}, fmt.Errorf("bad literal %q", s)
	}
	return Constant{Kind: ConstantNumber, Number: f}, nil
}
