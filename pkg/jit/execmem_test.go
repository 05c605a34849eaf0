//go:build linux && amd64

package jit

import "testing"

func TestExecutableMemoryAllocate(t *testing.T) {
	em, err := NewExecutableMemory(4096)
	if err != nil {
		t.Fatalf("NewExecutableMemory: %v", err)
	}
	defer em.Free()

	a, first, err := em.Allocate(5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, second, err := em.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a%16 != 0 || b%16 != 0 || b < a+5 {
		t.Fatalf("allocations at %#x and %#x", a, b)
	}
	if !em.Contains(a) || !em.Contains(b+99) {
		t.Errorf("allocations outside the region")
	}
	// Code is patched after placement, so the mapping stays writable.
	first[0], second[99] = 0xC3, 0xC3
	if first[0] != 0xC3 || second[99] != 0xC3 {
		t.Errorf("writes to code memory lost")
	}

	if _, _, err := em.Allocate(4096); err == nil {
		t.Errorf("expected out of memory error")
	}
	if err := em.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, _, err := em.Allocate(1); err == nil {
		t.Errorf("Allocate after Free succeeded")
	}
}
