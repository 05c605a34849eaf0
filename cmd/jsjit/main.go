// Command jsjit compiles register bytecode listings to x86-64 and runs them.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
)

type flags struct {
	config          *string
	codeSize        *int
	stackSize       *int
	nativeStackSize *int
	disasm          *bool
	store           *string
	verbose         *bool
}

func newFlags(fs *flag.FlagSet) *flags {
	def := defaultConfig()
	return &flags{
		config:          fs.String("config", "", "Path to a YAML configuration file"),
		codeSize:        fs.Int("code-size", def.CodeSize, "Executable memory in bytes"),
		stackSize:       fs.Int("stack-size", def.StackSize, "Register stack in bytes"),
		nativeStackSize: fs.Int("native-stack-size", def.NativeStackSize, "Native stack in bytes"),
		disasm:          fs.Bool("disasm", false, "Dump native code before running"),
		store:           fs.String("store", "", "Path to the program store directory"),
		verbose:         fs.Bool("v", false, "Log compiler and runtime debug records"),
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: jsjit [flags] <command> [args]

commands:
  run <file>            compile and run a listing
  compile <file>...     compile listings in parallel, storing them with -store
  disasm <file>         print the bytecode listing and native code
  store list            list stored programs
  store show <key>      print a stored program
  store run <key>       run a stored program

flags:
`)
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("jsjit: ")
	f := newFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	config, err := loadConfig(*f.config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(&config, flag.CommandLine, f)
	if config.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "run":
		err = runCommand(config, args[1:], os.Stdout)
	case "compile":
		err = compileCommand(config, args[1:], os.Stdout)
	case "disasm":
		err = disasmCommand(args[1:], os.Stdout)
	case "store":
		err = storeCommand(config, args[1:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
