package jit

import (
	"encoding/binary"
	"fmt"
	"sort"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/errors"
	"jsjit/pkg/value"
)

// CodeAllocator places finished code. *ExecutableMemory implements it.
type CodeAllocator interface {
	Allocate(size int) (uintptr, []byte, error)
}

type codeRange struct {
	start, end uintptr
	code       *bytecode.Code
}

// Image is a linked session: the placed code and the addresses the machine
// needs to enter it and walk its native stack.
type Image struct {
	Base       uintptr
	Code       []byte
	EntryThunk uintptr
	StubThunk  uintptr
	// ReturnSite is the return address the entry thunk leaves on the native
	// stack. Stack walks stop there.
	ReturnSite uintptr
	Programs   []*bytecode.Code

	ranges []codeRange
}

// Link places the session's buffer with alloc, publishes every program's
// entry point, patches resume addresses and fills in native handler ranges.
// The session cannot be used to compile afterwards.
func (s *Session) Link(alloc CodeAllocator) (img *Image, err error) {
	defer errors.Recover(&err)
	assert(!s.linked, "session already linked")
	if err := s.asm.resolve(); err != nil {
		return nil, errors.WrapInvariant(err, "link")
	}
	code := s.asm.Bytes()
	base, buf, err := alloc.Allocate(len(code))
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes of code: %w", len(code), err)
	}
	copy(buf, code)
	s.linked = true

	addr := func(l Label) uintptr { return base + uintptr(s.asm.LabelOffset(l)) }

	img = &Image{
		Base:       base,
		Code:       buf[:len(code)],
		EntryThunk: addr(s.entryThunk),
		StubThunk:  addr(s.stubThunk),
		ReturnSite: addr(s.returnSite),
		Programs:   s.programs,
	}
	for site, l := range s.addresses {
		binary.LittleEndian.PutUint64(buf[site:], uint64(value.EncodeAddress(addr(l))))
	}
	for _, p := range s.programs {
		entry, ok := s.entries[p]
		assert(ok, "program %s has no entry", p.Name)
		p.Entry = addr(entry)
		img.ranges = append(img.ranges, codeRange{start: p.Entry, end: base + uintptr(s.ends[p]), code: p})
		for i := range p.Handlers {
			h := &p.Handlers[i]
			begin, ok := s.handlerLinks[handlerKey{p, h.Begin}]
			assert(ok, "%s: handler begin %d not linked", p.Name, h.Begin)
			end, ok := s.handlerLinks[handlerKey{p, h.End}]
			assert(ok, "%s: handler end %d not linked", p.Name, h.End)
			h.NativeBegin = base + uintptr(begin)
			h.NativeEnd = base + uintptr(end)
		}
	}
	sort.Slice(img.ranges, func(i, j int) bool { return img.ranges[i].start < img.ranges[j].start })
	s.log.Debug("linked session", "base", fmt.Sprintf("%#x", base), "bytes", len(code),
		"programs", len(s.programs), "addresses", len(s.addresses))
	return img, nil
}

// Lookup returns the program whose code contains pc.
func (img *Image) Lookup(pc uintptr) *bytecode.Code {
	i := sort.Search(len(img.ranges), func(i int) bool { return img.ranges[i].end > pc })
	if i < len(img.ranges) && img.ranges[i].start <= pc {
		return img.ranges[i].code
	}
	return nil
}

// Contains reports whether pc lies inside the image.
func (img *Image) Contains(pc uintptr) bool {
	return pc >= img.Base && pc < img.Base+uintptr(len(img.Code))
}

// Offset converts an address inside the image to a buffer offset.
func (img *Image) Offset(pc uintptr) int {
	return int(pc - img.Base)
}

// Buffer is a CodeAllocator over ordinary memory for inspecting code
// without running it. Addresses are reported relative to Base. Each
// allocation gets its own backing array, so slices handed out earlier
// stay valid.
type Buffer struct {
	Base uintptr
	used uintptr
}

func (b *Buffer) Allocate(size int) (uintptr, []byte, error) {
	if size < 0 {
		return 0, nil, fmt.Errorf("negative allocation size %d", size)
	}
	start := (b.used + 15) &^ 15
	b.used = start + uintptr(size)
	return b.Base + start, make([]byte, size), nil
}
