package programstore

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"jsjit/pkg/bytecode"
)

const counter = `
function main regs=4
  BUILD_ENV 1, 0
  LOAD_CONST r0, "start"
  STORE_HEAP r0, n, 0, 0
  LOAD_FUNCTION r1, bump
try:
  LOAD_UNDEFINED r2
  CALL r3, r1, r2, 0
  RETURN r3
catch:
  TRY_CATCH_SETUP r3, e
  RETURN r3
  .catch try, catch
  function bump params=1 strict
    INCREMENT_HEAP r0, n, 0, 0
    RETURN r0
  end
end
`

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestPutGet(t *testing.T) {
	code, err := bytecode.Parse(counter)
	if err != nil {
		t.Fatal(err)
	}
	s := openStore(t)
	k, err := s.Put(code)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if k != KeyOf(code) {
		t.Errorf("Put key %s, KeyOf %s", k, KeyOf(code))
	}
	again, err := s.Put(code)
	if err != nil || again != k {
		t.Errorf("second Put = %s, %v", again, err)
	}

	got, err := s.Get(k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(bytecode.Listing(code), bytecode.Listing(got)); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
	if len(got.Codes) != 1 || !got.Codes[0].Strict || got.Codes[0].Params != 1 {
		t.Errorf("nested code not restored: %+v", got.Codes)
	}
	if len(got.Handlers) != 1 || got.Handlers[0].Kind != bytecode.HandlerCatch {
		t.Errorf("handlers = %+v", got.Handlers)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openStore(t)
	var want []Key
	for _, src := range []string{
		"function a\n  LOAD_TRUE r0\n  RETURN r0\nend\n",
		"function b\n  LOAD_FALSE r0\n  RETURN r0\nend\n",
	} {
		code, err := bytecode.Parse(src)
		if err != nil {
			t.Fatal(err)
		}
		k, err := s.Put(code)
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, k)
	}
	if want[0] == want[1] {
		t.Fatal("distinct programs share a key")
	}
	got, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	less := func(a, b Key) bool { return a.String() < b.String() }
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(less)); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(want[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(want[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: %v", err)
	}
	if got, _ := s.List(); len(got) != 1 || got[0] != want[1] {
		t.Errorf("List after Delete = %v", got)
	}
}

func TestParseKey(t *testing.T) {
	code, err := bytecode.Parse("function f\n  RETURN r0\nend\n")
	if err != nil {
		t.Fatal(err)
	}
	k := KeyOf(code)
	back, err := ParseKey(k.String())
	if err != nil || back != k {
		t.Fatalf("ParseKey(%s) = %s, %v", k, back, err)
	}
	if _, err := ParseKey("abcd"); err == nil {
		t.Error("short key accepted")
	}
	if _, err := ParseKey("zz"); err == nil {
		t.Error("non-hex key accepted")
	}
}
