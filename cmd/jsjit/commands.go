package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/jit"
	"jsjit/pkg/programstore"
	"jsjit/pkg/stubs"
	"jsjit/pkg/value"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

func readProgram(path string) (*bytecode.Code, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := bytecode.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

// prepare boxes the constants of every program in the tree so that it can
// be compiled without a machine.
func prepare(r *stubs.Realm, code *bytecode.Code) error {
	var err error
	code.Walk(func(c *bytecode.Code) {
		if err == nil {
			err = r.Prepare(nil, c)
		}
	})
	return err
}

// execute runs code on a fresh machine and prints its result unless it is
// undefined.
func execute(config Config, code *bytecode.Code, out io.Writer) error {
	realm := stubs.NewRealm(stubs.Options{Out: out})
	m, err := jit.NewMachine(config.machineConfig(), realm)
	if err != nil {
		return fmt.Errorf("create machine: %w", err)
	}
	defer m.Close()

	img, err := m.Compile(code)
	if err != nil {
		return fmt.Errorf("compile %s: %w", code.Name, err)
	}
	if config.Disassemble {
		if err := img.Disassemble(out); err != nil {
			return err
		}
	}
	v, err := m.Run(code, realm.GlobalThis())
	var exc *jit.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("uncaught exception: %s", realm.Display(exc.Value))
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", code.Name, err)
	}
	if v != value.Undefined {
		fmt.Fprintln(out, realm.Display(v))
	}
	return nil
}

func runCommand(config Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("run: want one file, got %d", len(args))
	}
	code, err := readProgram(args[0])
	if err != nil {
		return err
	}
	return execute(config, code, out)
}

type compiled struct {
	path  string
	code  *bytecode.Code
	bytes int
}

// compileFiles compiles every file in its own session. Sessions share
// nothing, so the files are compiled in parallel.
func compileFiles(ctx context.Context, paths []string, bar *progressbar.ProgressBar) ([]compiled, error) {
	results := make([]compiled, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := readProgram(path)
			if err != nil {
				return err
			}
			if err := prepare(stubs.NewRealm(stubs.Options{Out: io.Discard}), code); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			s := jit.NewSession(jit.DefaultOptions())
			if err := s.Compile(code); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			img, err := s.Link(&jit.Buffer{})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = compiled{path: path, code: code, bytes: len(img.Code)}
			return bar.Add(1)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func compileCommand(config Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("compile: no files")
	}
	bar := progressbar.Default(int64(len(args)), "compiling")
	results, err := compileFiles(context.Background(), args, bar)
	bar.Close()
	if err != nil {
		return err
	}

	var store *programstore.Store
	if config.StorePath != "" {
		if store, err = programstore.Open(config.StorePath); err != nil {
			return err
		}
		defer store.Close()
	}
	for _, r := range results {
		line := fmt.Sprintf("%s: %d programs, %d bytes", r.path, countPrograms(r.code), r.bytes)
		if store != nil {
			k, err := store.Put(r.code)
			if err != nil {
				return err
			}
			line += " " + k.String()
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func countPrograms(code *bytecode.Code) int {
	n := 0
	code.Walk(func(*bytecode.Code) { n++ })
	return n
}

func disasmCommand(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("disasm: want one file, got %d", len(args))
	}
	code, err := readProgram(args[0])
	if err != nil {
		return err
	}
	if err := prepare(stubs.NewRealm(stubs.Options{Out: io.Discard}), code); err != nil {
		return err
	}
	s := jit.NewSession(jit.DefaultOptions())
	if err := s.Compile(code); err != nil {
		return err
	}
	img, err := s.Link(&jit.Buffer{})
	if err != nil {
		return err
	}
	fmt.Fprint(out, bytecode.Listing(code))
	fmt.Fprintln(out)
	return img.Disassemble(out)
}

func storeCommand(config Config, args []string, out io.Writer) error {
	if config.StorePath == "" {
		return fmt.Errorf("store: no -store path configured")
	}
	if len(args) == 0 {
		return fmt.Errorf("store: missing subcommand")
	}
	store, err := programstore.Open(config.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "list":
		keys, err := store.List()
		if err != nil {
			return err
		}
		for _, k := range keys {
			code, err := store.Get(k)
			if err != nil {
				log.Printf("Skipping %s: %v", k, err)
				continue
			}
			fmt.Fprintf(out, "%s %s\n", k, code.Name)
		}
		return nil
	case "show", "run":
		if len(args) != 2 {
			return fmt.Errorf("store %s: want one key", args[0])
		}
		k, err := programstore.ParseKey(args[1])
		if err != nil {
			return err
		}
		code, err := store.Get(k)
		if err != nil {
			return err
		}
		if args[0] == "show" {
			fmt.Fprint(out, bytecode.Listing(code))
			return nil
		}
		return execute(config, code, out)
	}
	return fmt.Errorf("store: unknown subcommand %q", args[0])
}
