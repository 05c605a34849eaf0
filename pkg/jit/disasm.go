package jit

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble decodes code placed at base, one instruction per line, in
// Intel syntax. Undecodable bytes are printed as db.
func Disassemble(w io.Writer, code []byte, base uintptr, marks map[uintptr][]string) error {
	offset := 0
	for offset < len(code) {
		pc := base + uintptr(offset)
		for _, m := range marks[pc] {
			if _, err := fmt.Fprintf(w, "%s:\n", m); err != nil {
				return err
			}
		}
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			if _, err := fmt.Fprintf(w, "  %#x: db 0x%02x\n", pc, code[offset]); err != nil {
				return err
			}
			offset++
			continue
		}
		hexBytes := make([]string, inst.Len)
		for i := range hexBytes {
			hexBytes[i] = fmt.Sprintf("%02x", code[offset+i])
		}
		text := x86asm.IntelSyntax(inst, uint64(pc), nil)
		if _, err := fmt.Fprintf(w, "  %#x: %-30s %s\n", pc, strings.Join(hexBytes, " "), text); err != nil {
			return err
		}
		offset += inst.Len
	}
	return nil
}

// Disassemble writes the whole image with program entries, thunks and
// handler boundaries marked.
func (img *Image) Disassemble(w io.Writer) error {
	marks := make(map[uintptr][]string)
	mark := func(pc uintptr, format string, args ...any) {
		marks[pc] = append(marks[pc], fmt.Sprintf(format, args...))
	}
	mark(img.EntryThunk, "<entry thunk>")
	mark(img.StubThunk, "<stub thunk>")
	for _, p := range img.Programs {
		mark(p.Entry, "%s", p.Name)
		for i, h := range p.Handlers {
			mark(h.NativeBegin, "%s: %s %d begin", p.Name, h.Kind, i)
			mark(h.NativeEnd, "%s: %s %d end", p.Name, h.Kind, i)
		}
	}
	for pc := range marks {
		sort.Strings(marks[pc])
	}
	return Disassemble(w, img.Code, img.Base, marks)
}
