package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/schollz/progressbar/v3"

	"jsjit/pkg/programstore"
)

const greeting = `
function main regs=4
  LOAD_GLOBAL r0, print
  LOAD_UNDEFINED r1
  LOAD_CONST r2, "hello"
  CALL r3, r0, r1, 1
  LOAD_FUNCTION r3, twice
  RETURN r3
  function twice params=1
    BINARY_ADD r0, a0, a0
    RETURN r0
  end
end
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jsjit.yaml", "code_size: 1048576\nstore_path: /tmp/programs\ndisassemble: true\n")

	fs := flag.NewFlagSet("jsjit", flag.ContinueOnError)
	f := newFlags(fs)
	if err := fs.Parse([]string{"-config", path, "-store", "/srv/programs", "run", "x"}); err != nil {
		t.Fatal(err)
	}
	config, err := loadConfig(*f.config)
	if err != nil {
		t.Fatal(err)
	}
	applyFlags(&config, fs, f)

	want := defaultConfig()
	want.CodeSize = 1 << 20
	want.StorePath = "/srv/programs"
	want.Disassemble = true
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := config.machineConfig().CodeSize; got != 1<<20 {
		t.Errorf("machine code size = %d", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	bad := writeFile(t, t.TempDir(), "bad.yaml", "code_size: [1, 2\n")
	if _, err := loadConfig(bad); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestCompileFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.jsasm", greeting),
		writeFile(t, dir, "b.jsasm", "function b\n  LOAD_TRUE r0\n  RETURN r0\nend\n"),
	}
	bar := progressbar.NewOptions(len(paths), progressbar.OptionSetWriter(io.Discard))
	results, err := compileFiles(context.Background(), paths, bar)
	if err != nil {
		t.Fatalf("compileFiles: %v", err)
	}
	for i, r := range results {
		if r.path != paths[i] || r.bytes == 0 {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if n := countPrograms(results[0].code); n != 2 {
		t.Errorf("a.jsasm has %d programs", n)
	}

	broken := writeFile(t, dir, "c.jsasm", "function c\n  BOGUS r0\nend\n")
	bar = progressbar.NewOptions(2, progressbar.OptionSetWriter(io.Discard))
	if _, err := compileFiles(context.Background(), []string{paths[0], broken}, bar); err == nil || !strings.Contains(err.Error(), "c.jsasm") {
		t.Errorf("broken file: %v", err)
	}
}

func TestDisasmCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.jsasm", greeting)
	var out bytes.Buffer
	if err := disasmCommand([]string{path}, &out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"function main", "LOAD_CONST", "<stub thunk>:", "twice:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestStoreCommand(t *testing.T) {
	dir := t.TempDir()
	code, err := readProgram(writeFile(t, dir, "a.jsasm", greeting))
	if err != nil {
		t.Fatal(err)
	}
	config := defaultConfig()
	config.StorePath = filepath.Join(dir, "store")
	store, err := programstore.Open(config.StorePath)
	if err != nil {
		t.Fatal(err)
	}
	k, err := store.Put(code)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := storeCommand(config, []string{"list"}, &out); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), k.String()+" main\n"; got != want {
		t.Errorf("list = %q, want %q", got, want)
	}
	out.Reset()
	if err := storeCommand(config, []string{"show", k.String()}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "function main") {
		t.Errorf("show = %q", out.String())
	}
	if err := storeCommand(config, []string{"frobnicate"}, io.Discard); err == nil {
		t.Error("unknown subcommand accepted")
	}
	if err := storeCommand(defaultConfig(), []string{"list"}, io.Discard); err == nil {
		t.Error("store without a path accepted")
	}
}
