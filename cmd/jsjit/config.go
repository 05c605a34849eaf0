package main

import (
	"flag"
	"fmt"
	"os"

	"jsjit/pkg/jit"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration loaded from the YAML file. Flags given
// on the command line override it.
type Config struct {
	CodeSize        int    `yaml:"code_size"`         // executable memory in bytes
	StackSize       int    `yaml:"stack_size"`        // register stack in bytes
	NativeStackSize int    `yaml:"native_stack_size"` // native stack in bytes
	Disassemble     bool   `yaml:"disassemble"`       // dump native code before running
	StorePath       string `yaml:"store_path"`        // program store directory
	Verbose         bool   `yaml:"verbose"`
}

func defaultConfig() Config {
	def := jit.DefaultMachineConfig()
	return Config{
		CodeSize:        def.CodeSize,
		StackSize:       def.StackSize,
		NativeStackSize: def.NativeStackSize,
	}
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// applyFlags copies the flags that were set explicitly on fs into config.
func applyFlags(config *Config, fs *flag.FlagSet, f *flags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "code-size":
			config.CodeSize = *f.codeSize
		case "stack-size":
			config.StackSize = *f.stackSize
		case "native-stack-size":
			config.NativeStackSize = *f.nativeStackSize
		case "disasm":
			config.Disassemble = *f.disasm
		case "store":
			config.StorePath = *f.store
		case "v":
			config.Verbose = *f.verbose
		}
	})
}

func (c Config) machineConfig() jit.MachineConfig {
	return jit.MachineConfig{
		CodeSize:        c.CodeSize,
		StackSize:       c.StackSize,
		NativeStackSize: c.NativeStackSize,
		Session:         jit.DefaultOptions(),
	}
}
