//go:build linux && amd64

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.jsasm", greeting)
	var out bytes.Buffer
	if err := runCommand(defaultConfig(), []string{path}, &out); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "hello\nfunction twice() { [native code] }\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunUncaught(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.jsasm", "function main\n  LOAD_CONST r0, \"boom\"\n  THROW r0\nend\n")
	err := runCommand(defaultConfig(), []string{path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "uncaught exception: boom") {
		t.Errorf("err = %v", err)
	}
}
