//go:build linux && amd64

package jit

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"unsafe"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/jit/asm"
	"jsjit/pkg/value"
)

const (
	pageSize = 4096
	// nativeReserve is kept free below a nested entry and below the deepest
	// call a stub allows, so stub code itself never hits the guard page.
	nativeReserve = 64 << 10
)

// Machine runs compiled code. It owns the executable memory, the context
// block, the register stack and the native stack, and dispatches every stub
// exit to its StubHandler. A Machine is used by one goroutine at a time.
type Machine struct {
	cfg     MachineConfig
	handler StubHandler
	log     *slog.Logger

	mem    *ExecutableMemory
	data   *dataRegion
	native *dataRegion
	ctx    *Context

	codes  []*bytecode.Code
	images []*Image
	depth  int
}

// NewMachine maps the machine's memory. Zero config fields take their
// defaults.
func NewMachine(cfg MachineConfig, handler StubHandler) (*Machine, error) {
	def := DefaultMachineConfig()
	if cfg.CodeSize <= 0 {
		cfg.CodeSize = def.CodeSize
	}
	if cfg.StackSize <= 0 {
		cfg.StackSize = def.StackSize
	}
	if cfg.NativeStackSize < 2*nativeReserve {
		cfg.NativeStackSize = def.NativeStackSize
	}
	logger := cfg.Session.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{cfg: cfg, handler: handler, log: logger}

	var err error
	if m.mem, err = NewExecutableMemory(cfg.CodeSize); err != nil {
		return nil, err
	}
	if m.data, err = newDataRegion(pageSize + cfg.StackSize); err != nil {
		m.Close()
		return nil, err
	}
	if m.native, err = newDataRegion(cfg.NativeStackSize); err != nil {
		m.Close()
		return nil, err
	}
	if err = m.native.guard(pageSize); err != nil {
		m.Close()
		return nil, err
	}
	m.ctx = (*Context)(unsafe.Pointer(m.data.base()))
	m.ctx.StackPointer = uint64(m.data.base() + pageSize)
	m.ctx.StackLimit = uint64(m.data.end())
	m.ctx.NativeSP = uint64(m.native.end())
	return m, nil
}

// Close unmaps all memory. Compiled code must not run afterwards.
func (m *Machine) Close() error {
	var errs []error
	if m.mem != nil {
		errs = append(errs, m.mem.Free())
	}
	errs = append(errs, m.data.free(), m.native.free())
	m.ctx = nil
	return stderrors.Join(errs...)
}

// Compile assigns code IDs, lets the handler box constants and compiles and
// links the program tree into the machine's executable memory.
func (m *Machine) Compile(code *bytecode.Code) (*Image, error) {
	var err error
	code.Walk(func(c *bytecode.Code) {
		if err != nil {
			return
		}
		c.ID = uint32(len(m.codes))
		m.codes = append(m.codes, c)
		err = m.handler.Prepare(m, c)
	})
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", code.Name, err)
	}
	s := NewSession(m.cfg.Session)
	if err := s.Compile(code); err != nil {
		return nil, err
	}
	img, err := s.Link(m.mem)
	if err != nil {
		return nil, err
	}
	m.images = append(m.images, img)
	return img, nil
}

// Code returns the code with the given ID.
func (m *Machine) Code(id uint32) *bytecode.Code {
	if int(id) >= len(m.codes) {
		return nil
	}
	return m.codes[id]
}

// Frame returns the frame of the compiled code that made the current stub
// call.
func (m *Machine) Frame() Frame { return Frame(m.ctx.SavedR12) }

// Exception returns the value most recently delivered to a catch handler.
func (m *Machine) Exception() value.Value { return value.Value(m.ctx.Exception) }

// StackPointer is the first free byte of the register stack.
func (m *Machine) StackPointer() uintptr { return uintptr(m.ctx.StackPointer) }

// NativeStackAvailable reports whether a compiled call made with native
// stack pointer sp may go one level deeper.
func (m *Machine) NativeStackAvailable(sp uintptr) bool {
	return sp > m.native.base()+nativeReserve
}

// PushFrame lays out a frame for call at the register stack pointer: the
// arguments (at least code.Params of them, padded with undefined) and the
// receiver below the header, the registers above it, all registers
// undefined. The stack pointer moves past the registers.
func (m *Machine) PushFrame(prev Frame, call Call) (Frame, error) {
	code := call.Code
	argc := len(call.Args)
	slots := max(argc, int(code.Params))
	base := uintptr(m.ctx.StackPointer)
	frame := Frame(base + uintptr(slots+1)*8)
	limit := uintptr(frame) + uintptr(frameLimit(code))
	if limit > uintptr(m.ctx.StackLimit) {
		return 0, ErrStackOverflow
	}
	for i := 0; i < slots; i++ {
		v := value.Undefined
		if i < argc {
			v = call.Args[i]
		}
		frame.SetRegister(bytecode.ArgRegister(i), v)
	}
	frame.SetRegister(bytecode.ThisRegister, call.This)
	var flags uint64
	if call.Construct {
		flags |= FrameConstruct
	}
	header := unsafe.Slice((*uint64)(unsafe.Pointer(frame)), FrameHeaderSize/8)
	header[FramePrev/8] = uint64(prev)
	header[FrameCode/8] = uint64(code.ID)
	header[FrameEntry/8] = uint64(code.Entry)
	header[FrameCallee/8] = uint64(call.Callee)
	header[FrameArgc/8] = uint64(argc)
	header[FrameArgBase/8] = uint64(base)
	header[FrameLexEnv/8] = call.Env
	header[FrameVarEnv/8] = call.Env
	header[FrameFlags/8] = flags
	for r := bytecode.Register(0); r < bytecode.Register(code.RegisterCount); r++ {
		frame.SetRegister(r, value.Undefined)
	}
	m.ctx.StackPointer = uint64(limit)
	return frame, nil
}

// Run executes a compiled top-level code with the given receiver in
// environment 0.
func (m *Machine) Run(code *bytecode.Code, this value.Value, args ...value.Value) (value.Value, error) {
	return m.Invoke(Call{Code: code, Callee: value.Undefined, This: this, Args: args})
}

// Invoke runs call to completion. It may be called from inside a stub; the
// nested run uses the native stack below the suspended one and the machine
// state is restored when it returns.
func (m *Machine) Invoke(call Call) (value.Value, error) {
	if call.Code.Entry == 0 {
		return 0, fmt.Errorf("invoke %s: code is not linked", call.Code.Name)
	}
	img := m.imageOf(call.Code.Entry)
	if img == nil {
		return 0, fmt.Errorf("invoke %s: code belongs to another machine", call.Code.Name)
	}
	saved := *m.ctx
	defer func() { *m.ctx = saved }()

	var prev Frame
	if m.depth > 0 {
		prev = Frame(saved.SavedR12)
		sp := uintptr(saved.NativeSP) - nativeReserve
		if !m.NativeStackAvailable(sp) {
			return 0, ErrStackOverflow
		}
		m.ctx.NativeSP = uint64(sp &^ 15)
	} else {
		m.ctx.NativeSP = uint64(m.native.end())
	}
	frame, err := m.PushFrame(prev, call)
	if err != nil {
		return 0, err
	}
	m.depth++
	defer func() { m.depth-- }()

	ctx := uintptr(unsafe.Pointer(m.ctx))
	status := asm.Enter(ctx, img.EntryThunk, uintptr(frame), call.Code.Entry)
	for {
		switch status {
		case ExitReturn:
			return value.Value(m.ctx.Result), nil
		case ExitStub:
			id := StubID(m.ctx.StubID)
			args := m.ctx.Args
			r0, r1, err := m.handler.Stub(m, id, &args)
			if err != nil {
				var exc *Exception
				if !stderrors.As(err, &exc) {
					return 0, fmt.Errorf("stub %s: %w", id, err)
				}
				if status, err = m.throw(exc); err != nil {
					return 0, err
				}
				continue
			}
			status = asm.Resume(ctx, uintptr(r0), uintptr(r1))
		default:
			return 0, fmt.Errorf("unexpected exit status %d", status)
		}
	}
}

func (m *Machine) imageOf(pc uintptr) *Image {
	for _, img := range m.images {
		if img.Contains(pc) {
			return img
		}
	}
	return nil
}

// throw walks the native stack from the current stub call looking for a
// handler whose native range covers a return address. The stack alternates
// [return address][frame of the function returned into]; the walk ends at
// the entry thunk's return site, where the exception leaves this run.
func (m *Machine) throw(exc *Exception) (uint64, error) {
	sp := uintptr(m.ctx.NativeSP)
	frame := Frame(m.ctx.SavedR12)
	for {
		ra := *(*uintptr)(unsafe.Pointer(sp))
		img := m.imageOf(ra)
		if img == nil {
			return 0, fmt.Errorf("unwind: return address %#x outside compiled code", ra)
		}
		if ra == img.ReturnSite {
			return 0, exc
		}
		code := img.Lookup(ra)
		if code == nil {
			return 0, fmt.Errorf("unwind: no code at %#x", ra)
		}
		if h := findHandler(code, ra-1); h != nil {
			m.log.Debug("exception caught", "code", code.Name, "kind", h.Kind, "begin", h.Begin, "end", h.End)
			*(*uintptr)(unsafe.Pointer(sp)) = h.NativeEnd
			m.ctx.NativeSP = uint64(sp)
			m.ctx.SavedR12 = uint64(frame)
			m.ctx.StackPointer = uint64(uintptr(frame) + uintptr(frameLimit(code)))
			if h.Kind == bytecode.HandlerCatch {
				m.ctx.Exception = uint64(exc.Value)
			} else {
				frame.SetRegister(h.Flag, value.Int32(bytecode.FinallyThrow))
				frame.SetRegister(h.Jump, exc.Value)
			}
			m.handler.Unwind(m, frame, h)
			return asm.Resume(uintptr(unsafe.Pointer(m.ctx)), 0, 0), nil
		}
		sp += 16
		frame = Frame(*(*uintptr)(unsafe.Pointer(sp + 8)))
	}
}
