package jit

import (
	"log/slog"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/errors"
	"jsjit/pkg/value"
)

// TraceFunc observes the emitter once per instruction, before the
// instruction is emitted. cached is the register the accumulator is known to
// hold at that point, or bytecode.InvalidRegister.
type TraceFunc func(code *bytecode.Code, offset uint32, op bytecode.Opcode, cached bytecode.Register)

// Options configures a Session.
type Options struct {
	// CodeSizeHint is the initial capacity of the code buffer.
	CodeSizeHint int
	Logger       *slog.Logger
	Trace        TraceFunc
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{CodeSizeHint: 64 << 10}
}

type handlerKey struct {
	code   *bytecode.Code
	offset uint32
}

// Session compiles one program tree into a single code buffer. Every nested
// program shares the buffer, the label space and the link maps; Link
// places the buffer and publishes entry points. A Session is used by one
// goroutine and is not reusable after Link.
type Session struct {
	asm   *Assembler
	log   *slog.Logger
	trace TraceFunc

	programs     []*bytecode.Code
	entries      map[*bytecode.Code]Label
	ends         map[*bytecode.Code]int
	addresses    map[int]Label
	handlerLinks map[handlerKey]int

	entryThunk Label
	stubThunk  Label
	returnSite Label
	linked     bool
}

// NewSession creates a session and emits the shared thunks at the start of
// its buffer.
func NewSession(opts Options) *Session {
	if opts.CodeSizeHint <= 0 {
		opts.CodeSizeHint = DefaultOptions().CodeSizeHint
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		asm:          NewAssembler(opts.CodeSizeHint),
		log:          logger,
		trace:        opts.Trace,
		entries:      make(map[*bytecode.Code]Label),
		ends:         make(map[*bytecode.Code]int),
		addresses:    make(map[int]Label),
		handlerLinks: make(map[handlerKey]int),
	}
	s.emitThunks()
	return s
}

// emitThunks writes the entry thunk and the stub thunk.
//
// The entry thunk is reached from asm.Enter with RDI = context, RSI =
// frame, RDX = native entry, already running on the native stack. It loads
// the pinned registers, pushes the frame so that the outermost native frame
// has the same [return address][frame] shape as every other, and calls the
// entry. On return it stores the result and leaves to Go.
//
// The stub thunk is called from compiled code with RDI = context, EAX = stub
// ID and arguments in RSI, RDX, RCX, R8, R9. It parks everything Go needs in
// the context and leaves to Go; asm.Resume comes back to the return address
// left on the native stack.
func (s *Session) emitThunks() {
	a := s.asm
	s.entryThunk = a.NewLabel()
	s.stubThunk = a.NewLabel()
	s.returnSite = a.NewLabel()

	a.Bind(s.entryThunk)
	a.MovRegReg(ContextReg, RDI)
	a.MovRegReg(FrameReg, RSI)
	a.MovRegImm64(MaskReg, value.NumberMask)
	a.Push(FrameReg)
	a.CallReg(RDX)
	a.Bind(s.returnSite)
	a.Pop(RCX)
	a.MovMemReg64(ContextReg, ctxResult, RAX)
	a.MovRegReg(RDI, ContextReg)
	a.MovRegImm32(RAX, ExitReturn)
	s.emitLeave()

	a.Align(16)
	a.Bind(s.stubThunk)
	a.MovMemReg64(RDI, ctxStubID, RAX)
	for i, reg := range stubArgRegs {
		a.MovMemReg64(RDI, ctxArgs+int32(i)*8, reg)
	}
	a.MovMemReg64(RDI, ctxNativeSP, RSP)
	a.MovMemReg64(RDI, ctxSavedRBX, RBX)
	a.MovMemReg64(RDI, ctxSavedRBP, RBP)
	a.MovMemReg64(RDI, ctxSavedR12, R12)
	a.MovMemReg64(RDI, ctxSavedR14, R14)
	a.MovMemReg64(RDI, ctxSavedR15, R15)
	a.MovRegImm32(RAX, ExitStub)
	s.emitLeave()
	a.Align(16)
}

// emitLeave switches back to the Go stack saved by the trampoline and
// returns into it. RDI holds the context, RAX the exit status.
func (s *Session) emitLeave() {
	s.asm.MovRegMem64(RSP, RDI, ctxGoSP)
	s.asm.MovRegMem64(RBP, RDI, ctxGoBP)
	s.asm.Ret()
}

// Compile emits code and, depth first, every program nested in it. Broken
// producer invariants are returned as *errors.InvariantError.
func (s *Session) Compile(code *bytecode.Code) (err error) {
	defer errors.Recover(&err)
	assert(!s.linked, "session already linked")
	s.compile(code)
	return nil
}

func (s *Session) compile(code *bytecode.Code) {
	_, seen := s.entries[code]
	assert(!seen, "program %s compiled twice", code.Name)
	start := s.asm.Offset()
	newCompiler(s, code).compile()
	s.programs = append(s.programs, code)
	s.ends[code] = s.asm.Offset()
	s.log.Debug("compiled program", "name", code.Name, "words", len(code.Data), "bytes", s.asm.Offset()-start)
	for _, child := range code.Codes {
		s.compile(child)
	}
}

// Programs returns every compiled program in emission order.
func (s *Session) Programs() []*bytecode.Code { return s.programs }

// Size returns the number of code bytes emitted so far.
func (s *Session) Size() int { return s.asm.Offset() }
