//go:build linux && amd64

// Package asm holds the Go assembly that switches between the goroutine
// stack and compiled code running on its own native stack.
package asm

// Enter switches to the native stack recorded in the context and jumps to
// thunk with DI = ctx, SI = frame, DX = entry. It returns the exit status
// the compiled code leaves in AX when it switches back.
func Enter(ctx, thunk, frame, entry uintptr) uint64

// Resume restores the native stack and registers parked in the context by
// the last exit and returns into compiled code with AX = r0, DX = r1.
func Resume(ctx, r0, r1 uintptr) uint64
