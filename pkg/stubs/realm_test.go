//go:build linux && amd64

package stubs

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

func newMachine(t *testing.T) (*Realm, *jit.Machine) {
	t.Helper()
	r := NewRealm(Options{Out: new(bytes.Buffer)})
	m, err := jit.NewMachine(jit.MachineConfig{}, r)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return r, m
}

func execute(t *testing.T, r *Realm, m *jit.Machine, src string) (value.Value, error) {
	t.Helper()
	code, err := bytecode.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := m.Compile(code); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return m.Run(code, r.GlobalThis())
}

func mustRun(t *testing.T, src string) (*Realm, value.Value) {
	t.Helper()
	r, m := newMachine(t)
	v, err := execute(t, r, m, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return r, v
}

// mustThrow runs src and returns the display form of the uncaught exception.
func mustThrow(t *testing.T, src string) string {
	t.Helper()
	r, m := newMachine(t)
	_, err := execute(t, r, m, src)
	var exc *jit.Exception
	if !errors.As(err, &exc) {
		t.Fatalf("run: got %v, want an exception", err)
	}
	return r.Display(exc.Value)
}

func TestTopLevelVariablesLiveOnGlobal(t *testing.T) {
	r, got := mustRun(t, `
function main regs=3
  INSTANTIATE_VARIABLE_BINDING x, 0
  LOAD_INT32 r0, 5
  STORE_NAME r0, x
  LOAD_NAME r1, x
  TYPEOF_NAME r2, nope
  RETURN r1
end
`)
	if got != value.Int32(5) {
		t.Errorf("x = %s", r.Display(got))
	}
	if r.Global("x") != value.Int32(5) {
		t.Errorf("global x = %s", r.Display(r.Global("x")))
	}
	if p := r.globalObject.own("x"); p == nil || p.Configurable {
		t.Errorf("var binding property = %+v", p)
	}
}

func TestStrictStoreToUndeclared(t *testing.T) {
	msg := mustThrow(t, `
function main regs=1 strict
  LOAD_INT32 r0, 1
  STORE_NAME r0, ghost
end
`)
	if !strings.HasPrefix(msg, "ReferenceError") {
		t.Errorf("exception = %q", msg)
	}
	// Sloppy code creates the global instead.
	r, _ := mustRun(t, `
function main regs=1
  LOAD_INT32 r0, 1
  STORE_NAME r0, ghost
end
`)
	if r.Global("ghost") != value.Int32(1) {
		t.Errorf("ghost = %s", r.Display(r.Global("ghost")))
	}
}

func TestWithScopeAndDynamicCall(t *testing.T) {
	r, got := mustRun(t, `
function main regs=7
  LOAD_OBJECT r0
  LOAD_INT32 r1, 9
  STORE_PROP r0, y, r1
  LOAD_FUNCTION r1, who
  STORE_PROP r0, who, r1
  WITH_SETUP r0
  LOAD_NAME r6, y
  PREPARE_DYNAMIC_CALL r2, r3, who
  CALL r4, r2, r3, 0
  POP_ENV
  BINARY_STRICT_EQ r5, r4, r0
  IF_FALSE r5, wrong
  TYPEOF_NAME r5, y
  RETURN r6
wrong:
  LOAD_NULL r6
  RETURN r6
  function who
    RETURN this
  end
end
`)
	if got != value.Int32(9) {
		t.Fatalf("with lookup = %s", r.Display(got))
	}
}

func TestArrayLiteral(t *testing.T) {
	r, got := mustRun(t, `
function main regs=7
  LOAD_INT32 r1, 10
  LOAD_INT32 r2, 20
  LOAD_INT32 r3, 30
  LOAD_ARRAY r0, 3
  INIT_VECTOR_ARRAY_ELEMENT r0, r1, 0, 3
  LOAD_INT32 r4, 1
  LOAD_ELEMENT r5, r0, r4
  LOAD_PROP r6, r0, length
  BINARY_ADD r5, r5, r6
  RETURN r5
end
`)
	if got != value.Int32(23) {
		t.Errorf("a[1] + a.length = %s", r.Display(got))
	}
}

func TestArgumentsObject(t *testing.T) {
	r, got := mustRun(t, `
function main regs=4
  LOAD_FUNCTION r0, f
  LOAD_UNDEFINED r1
  LOAD_INT32 r2, 4
  LOAD_INT32 r3, 5
  CALL r0, r0, r1, 2
  RETURN r0
  function f
    LOAD_ARGUMENTS r0
    LOAD_PROP r1, r0, length
    RETURN r1
  end
end
`)
	if got != value.Int32(2) {
		t.Errorf("arguments.length = %s", r.Display(got))
	}
}

func TestGetterRunsCompiledCode(t *testing.T) {
	r, got := mustRun(t, `
function main regs=3
  LOAD_OBJECT r0
  LOAD_FUNCTION r1, answer
  STORE_OBJECT_GET r0, r1, 0, v
  LOAD_PROP r2, r0, v
  RETURN r2
  function answer
    LOAD_INT32 r0, 42
    RETURN r0
  end
end
`)
	if got != value.Int32(42) {
		t.Errorf("o.v = %s", r.Display(got))
	}
}

func TestRegExpLiteral(t *testing.T) {
	r, got := mustRun(t, `
function main regs=2
  LOAD_REGEXP r0, "a+", "gi"
  LOAD_PROP r1, r0, source
  RETURN r1
end
`)
	if s := r.StringOf(got); s != "a+" {
		t.Errorf("source = %q", s)
	}
	msg := mustThrow(t, `
function main regs=1
  LOAD_REGEXP r0, "a+", "gg"
  RETURN r0
end
`)
	if !strings.HasPrefix(msg, "SyntaxError") {
		t.Errorf("exception = %q", msg)
	}
}

func TestEvalOfSourceText(t *testing.T) {
	msg := mustThrow(t, `
function main regs=4
  LOAD_GLOBAL r0, eval
  LOAD_UNDEFINED r1
  LOAD_CONST r2, "1 + 1"
  EVAL r3, r0, r1, 1
  RETURN r3
end
`)
	if !strings.HasPrefix(msg, "EvalError") {
		t.Errorf("exception = %q", msg)
	}
	r, got := mustRun(t, `
function main regs=4
  LOAD_GLOBAL r0, eval
  LOAD_UNDEFINED r1
  LOAD_INT32 r2, 8
  EVAL r3, r0, r1, 1
  RETURN r3
end
`)
	if got != value.Int32(8) {
		t.Errorf("eval(8) = %s", r.Display(got))
	}
}

func TestNativeCallsBackIntoCompiledCode(t *testing.T) {
	r, got := mustRun(t, `
function main regs=6
  LOAD_FUNCTION r0, add
  LOAD_PROP r1, r0, call
  MV r2, r0
  LOAD_UNDEFINED r3
  LOAD_INT32 r4, 2
  LOAD_INT32 r5, 3
  CALL r1, r1, r2, 3
  RETURN r1
  function add params=2
    BINARY_ADD r0, a0, a1
    RETURN r0
  end
end
`)
	if got != value.Int32(5) {
		t.Errorf("add.call(undefined, 2, 3) = %s", r.Display(got))
	}
}
