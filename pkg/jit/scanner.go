package jit

import (
	"jsjit/pkg/bytecode"
)

// JumpTarget is one entry of a program's jump-target map. Handled targets
// are exception-region boundaries whose native offsets must be recorded
// for the linker.
type JumpTarget struct {
	Label   Label
	Handled bool
}

// JumpTable maps bytecode word offsets to their labels.
type JumpTable map[uint32]JumpTarget

// ScanJumpTargets walks code once and assigns a label to every offset that
// some instruction jumps to and to every handler boundary. Labels come from
// asm, so they are unique across the session.
func ScanJumpTargets(code *bytecode.Code, asm *Assembler) JumpTable {
	table := make(JumpTable)
	end := uint32(len(code.Data))
	for cur := bytecode.NewCursor(code.Data); !cur.Done(); cur.Next() {
		op := cur.Opcode()
		assert(op.Valid(), "%s: invalid opcode %d at %d", code.Name, op, cur.Offset())
		assert(cur.Offset()+op.Length() <= end, "%s: %s at %d runs past the end", code.Name, op, cur.Offset())
		if !op.IsJump() {
			continue
		}
		target := cur.JumpTarget()
		assert(target <= end, "%s: %s at %d jumps to %d outside the program", code.Name, op, cur.Offset(), target)
		table.register(asm, target, false)
	}
	for _, h := range code.Handlers {
		assert(h.Begin <= h.End && h.End <= end, "%s: handler range [%d, %d) outside the program", code.Name, h.Begin, h.End)
		table.register(asm, h.Begin, true)
		table.register(asm, h.End, true)
	}
	return table
}

// register adds offset to the table. A handler boundary replaces a plain
// entry with a fresh handled one; other duplicates are ignored.
func (t JumpTable) register(asm *Assembler, offset uint32, handled bool) {
	if have, ok := t[offset]; ok && (have.Handled || !handled) {
		return
	}
	t[offset] = JumpTarget{Label: asm.NewLabel(), Handled: handled}
}
