package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// examplePrograms are built-in demonstration programs, keyed by file stem.
var examplePrograms = map[string]func() *bytecode.Program{
	"hello":     helloProgram,
	"factorial": factorialProgram,
	"sleepers":  sleepersProgram,
}

// handleExamplesCommand processes the `cellvm examples` subcommand.
// Usage:
//
//	cellvm examples            # ./hello.cbor, ./factorial.cbor, ...
//	cellvm examples -o build   # custom output directory
func handleExamplesCommand(args []string) {
	outDir := "."
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" || args[i] == "--output" {
			if i+1 < len(args) {
				outDir = args[i+1]
				i++
			} else {
				fatalf("Error: -o requires an output directory")
			}
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fatalf("Error: %v", err)
	}
	for name, build := range examplePrograms {
		data, err := bytecode.MarshalProgram(build())
		if err != nil {
			fatalf("Error encoding %s: %v", name, err)
		}
		path := filepath.Join(outDir, name+".cbor")
		if err := os.WriteFile(path, data, 0644); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
	}
}

// helloProgram prints a greeting and halts with exit code 0.
func helloProgram() *bytecode.Program {
	b := bytecode.NewBuilder()
	m := b.Func("MAIN")
	m.EmitStringWithLen("hello world!")
	m.EmitCall(bytecode.OpCall, "PRINT_STR")
	m.EmitArg(bytecode.OpHalt, 0)
	m.Emit(bytecode.OpReturn)
	return b.MustBuild()
}

// factorialProgram prints fact(n) for its single argument and returns it.
func factorialProgram() *bytecode.Program {
	b := bytecode.NewBuilder()

	f := b.Func("fact", "n")
	f.EmitLoad("n")
	f.EmitArg(bytecode.OpLoadVal, 1)
	f.Emit(bytecode.OpCmp)
	f.EmitJump(bytecode.OpJg, "recurse")
	f.EmitArg(bytecode.OpLoadVal, 1)
	f.Emit(bytecode.OpReturnValue)
	f.Mark("recurse")
	f.EmitLoad("n")
	f.EmitLoad("n")
	f.Emit(bytecode.OpDecr)
	f.EmitCall(bytecode.OpCall, "fact")
	f.Emit(bytecode.OpMul)
	f.Emit(bytecode.OpReturnValue)

	m := b.Func("MAIN", "n")
	m.EmitLoad("n")
	m.EmitCall(bytecode.OpCall, "fact")
	m.Emit(bytecode.OpDup)
	m.EmitCall(bytecode.OpCall, "PRINT")
	m.Emit(bytecode.OpReturnValue)
	return b.MustBuild()
}

// sleepersProgram starts two tasks that sleep for different times, awaits
// both and returns the sum of their ids. The shorter sleeper prints first.
func sleepersProgram() *bytecode.Program {
	b := bytecode.NewBuilder()

	s := b.AsyncFunc("sleeper", "id", "ms")
	s.EmitLoad("ms")
	s.EmitCall(bytecode.OpAsyncCall, "SLEEP")
	s.Emit(bytecode.OpPoll)
	s.EmitLoad("id")
	s.Emit(bytecode.OpDup)
	s.EmitCall(bytecode.OpCall, "PRINT")
	s.Emit(bytecode.OpReturnValue)

	m := b.Func("MAIN")
	m.EmitArg(bytecode.OpLoadVal, 1)
	m.EmitArg(bytecode.OpLoadVal, 30)
	m.EmitCall(bytecode.OpCall, "sleeper")
	m.EmitArg(bytecode.OpLoadVal, 2)
	m.EmitArg(bytecode.OpLoadVal, 10)
	m.EmitCall(bytecode.OpCall, "sleeper")
	m.Emit(bytecode.OpPoll)
	m.Emit(bytecode.OpSwap)
	m.Emit(bytecode.OpPoll)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpReturnValue)
	return b.MustBuild()
}
