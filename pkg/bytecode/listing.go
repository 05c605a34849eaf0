package bytecode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Listing renders c (and nested codes) in the form accepted by Parse.
func Listing(c *Code) string {
	var sb strings.Builder
	writeListing(&sb, c, "")
	return sb.String()
}

func writeListing(sb *strings.Builder, c *Code, indent string) {
	fmt.Fprintf(sb, "%sfunction %s regs=%d params=%d", indent, c.Name, c.RegisterCount, c.Params)
	if c.Strict {
		sb.WriteString(" strict")
	}
	sb.WriteByte('\n')

	targets := make(map[uint32]bool)
	for cur := NewCursor(c.Data); !cur.Done(); cur.Next() {
		if cur.Opcode().IsJump() {
			targets[cur.JumpTarget()] = true
		}
	}
	for _, h := range c.Handlers {
		targets[h.Begin] = true
		targets[h.End] = true
	}
	label := func(off uint32) string { return "L" + strconv.FormatUint(uint64(off), 10) }

	inner := indent + "  "
	for cur := NewCursor(c.Data); !cur.Done(); cur.Next() {
		if targets[cur.Offset()] {
			fmt.Fprintf(sb, "%s%s:\n", indent, label(cur.Offset()))
		}
		op := cur.Opcode()
		var args []string
		for i, f := range op.Format() {
			w := cur.Operand(i + 1)
			switch f {
			case 'r':
				args = append(args, w.Reg().String())
			case 'i':
				args = append(args, strconv.Itoa(int(w.I32())))
			case 'u':
				args = append(args, strconv.FormatUint(uint64(w.U32()), 10))
			case 'k':
				args = append(args, c.Constants[w.U32()].String())
			case 'n':
				args = append(args, strconv.Quote(c.Names[w.U32()]))
			case 'c':
				args = append(args, c.Codes[w.U32()].Name)
			case 'j':
				args = append(args, label(cur.JumpTarget()))
			case 's':
				a, b, n := w.SSW()
				args = append(args, a.String(), b.String(), strconv.FormatUint(uint64(n), 10))
			}
		}
		if len(args) == 0 {
			fmt.Fprintf(sb, "%s%s\n", inner, op)
		} else {
			fmt.Fprintf(sb, "%s%s %s\n", inner, op, strings.Join(args, ", "))
		}
	}
	if targets[uint32(len(c.Data))] {
		fmt.Fprintf(sb, "%s%s:\n", indent, label(uint32(len(c.Data))))
	}

	for _, h := range c.Handlers {
		if h.Kind == HandlerFinally {
			fmt.Fprintf(sb, "%s.finally %s, %s, jump=%s, flag=%s, level=%d\n",
				inner, label(h.Begin), label(h.End), h.Jump, h.Flag, h.DynamicEnvLevel)
		} else {
			fmt.Fprintf(sb, "%s.catch %s, %s, level=%d\n", inner, label(h.Begin), label(h.End), h.DynamicEnvLevel)
		}
	}
	for _, child := range c.Codes {
		writeListing(sb, child, inner)
	}
	fmt.Fprintf(sb, "%send\n", indent)
}

// JumpTargets returns the sorted set of offsets that some instruction of c
// jumps to.
func JumpTargets(c *Code) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for cur := NewCursor(c.Data); !cur.Done(); cur.Next() {
		if cur.Opcode().IsJump() && !seen[cur.JumpTarget()] {
			seen[cur.JumpTarget()] = true
			out = append(out, cur.JumpTarget())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
