//go:build linux && amd64

package jit

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExecutableMemory manages mmap'd memory with execute permissions for JIT code
type ExecutableMemory struct {
	buffer []byte
	used   int
	mu     sync.Mutex
}

// NewExecutableMemory allocates executable memory via mmap
func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	if size <= 0 {
		size = DefaultCodeSize
	}

	// Code is patched after placement (entry points, resume addresses), so
	// the mapping stays writable.
	buffer, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap executable memory: %w", err)
	}

	return &ExecutableMemory{
		buffer: buffer,
	}, nil
}

// Allocate reserves a 16-byte aligned chunk of executable memory and returns
// its address and a writable view of it.
func (em *ExecutableMemory) Allocate(size int) (uintptr, []byte, error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.buffer == nil {
		return 0, nil, fmt.Errorf("executable memory already freed")
	}
	start := (em.used + 15) &^ 15
	if start+size > len(em.buffer) {
		return 0, nil, fmt.Errorf("out of executable memory: need %d, have %d", size, len(em.buffer)-start)
	}

	slice := em.buffer[start : start+size]
	addr := uintptr(start) + em.BaseAddress()
	em.used = start + size

	return addr, slice, nil
}

// BaseAddress returns the base address of the executable memory region
func (em *ExecutableMemory) BaseAddress() uintptr {
	if len(em.buffer) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&em.buffer[0]))
}

// Free releases the executable memory
func (em *ExecutableMemory) Free() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.buffer == nil {
		return nil
	}

	err := unix.Munmap(em.buffer)
	em.buffer = nil
	em.used = 0
	return err
}

// Used returns the amount of memory currently in use
func (em *ExecutableMemory) Used() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.used
}

// Capacity returns the total capacity
func (em *ExecutableMemory) Capacity() int {
	return len(em.buffer)
}

// Contains reports whether addr lies inside the region.
func (em *ExecutableMemory) Contains(addr uintptr) bool {
	base := em.BaseAddress()
	return base != 0 && addr >= base && addr < base+uintptr(len(em.buffer))
}

// dataRegion is a plain read-write anonymous mapping outside the Go heap,
// used for the machine context, the register stack and the native stack.
type dataRegion struct {
	buffer []byte
}

func newDataRegion(size int) (*dataRegion, error) {
	buffer, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap data region: %w", err)
	}
	return &dataRegion{buffer: buffer}, nil
}

func (r *dataRegion) base() uintptr { return uintptr(unsafe.Pointer(&r.buffer[0])) }
func (r *dataRegion) end() uintptr  { return r.base() + uintptr(len(r.buffer)) }

func (r *dataRegion) free() error {
	if r == nil || r.buffer == nil {
		return nil
	}
	err := unix.Munmap(r.buffer)
	r.buffer = nil
	return err
}

// guard makes the lowest n bytes inaccessible so that running off the
// bottom of a stack faults instead of corrupting memory.
func (r *dataRegion) guard(n int) error {
	if err := unix.Mprotect(r.buffer[:n], unix.PROT_NONE); err != nil {
		return fmt.Errorf("failed to protect guard page: %w", err)
	}
	return nil
}
