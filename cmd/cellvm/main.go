// cellvm CLI - runs, lists and stores cell bytecode program images
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/cellvm/manifest"
	"github.com/chazu/cellvm/pkg/bytecode"
	"github.com/chazu/cellvm/store"
	"github.com/chazu/cellvm/vm"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides cellvm.toml)")
	configDir := flag.String("config", ".", "Directory to search upwards for cellvm.toml")
	logFile := flag.String("log-file", "", "Log to this file instead of stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cellvm [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [-store name] [-drain] [image.cbor] [args...]   Run MAIN\n")
		fmt.Fprintf(os.Stderr, "  disasm [-store name] [image.cbor]                  Print a listing\n")
		fmt.Fprintf(os.Stderr, "  store put <name> <image.cbor>                      Add an image to the library\n")
		fmt.Fprintf(os.Stderr, "  store list                                         List stored programs\n")
		fmt.Fprintf(os.Stderr, "  store rm <name>                                    Remove a stored program\n")
		fmt.Fprintf(os.Stderr, "  examples [-o dir]                                  Write the example images\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(*configDir)
	if err != nil {
		fatalf("Error loading manifest: %v", err)
	}
	if m == nil {
		m = manifest.Default(*configDir)
	}

	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	logPath := m.LogFilePath()
	if *logFile != "" {
		logPath = *logFile
	}
	if logPath != "" {
		commonlog.Configure(m.Log.Verbosity, &logPath)
	} else {
		commonlog.Configure(m.Log.Verbosity, nil)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "run":
		os.Exit(handleRunCommand(m, args[1:]))
	case "disasm":
		handleDisasmCommand(m, args[1:])
	case "store":
		handleStoreCommand(m, args[1:])
	case "examples":
		handleExamplesCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}

// handleRunCommand processes the `cellvm run` subcommand and returns the
// process exit code: the HALT operand, or the cell MAIN returned.
func handleRunCommand(m *manifest.Manifest, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	storeName := fs.String("store", "", "Run the named program from the library")
	drain := fs.Bool("drain", false, "Run remaining tasks to completion after MAIN returns")
	fs.Parse(args)

	p, rest, err := loadProgram(m, *storeName, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cells := make([]vm.Cell, 0, len(rest))
	for _, a := range rest {
		n, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			fatalf("Invalid argument %q: want a 32-bit integer", a)
		}
		cells = append(cells, vm.Cell(n))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	machine := vm.NewVM(p, m.VMOptions()...)
	machine.RegisterSleep()

	res, err := machine.Run(ctx, cells...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *drain {
		if err := machine.Scheduler().Drain(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	switch {
	case res.Halted:
		return exitStatus(res.ExitCode)
	case res.HasValue:
		return exitStatus(int32(res.Value))
	default:
		return 0
	}
}

// exitStatus maps a result cell to a process exit status. Only 0-255
// survive the trip through the OS; anything else is printed and reported
// as 1.
func exitStatus(code int32) int {
	if code < 0 || code > 255 {
		fmt.Fprintf(os.Stderr, "exit code %d out of range\n", code)
		return 1
	}
	return int(code)
}

// handleDisasmCommand processes the `cellvm disasm` subcommand.
func handleDisasmCommand(m *manifest.Manifest, args []string) {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	storeName := fs.String("store", "", "Disassemble the named program from the library")
	fs.Parse(args)

	p, _, err := loadProgram(m, *storeName, fs.Args())
	if err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Print(p.Disassemble())
}

// loadProgram resolves the program to operate on: a stored program, the
// image named by the first argument, or the manifest's default image. It
// returns the arguments left over.
func loadProgram(m *manifest.Manifest, storeName string, args []string) (*bytecode.Program, []string, error) {
	if storeName != "" {
		s, err := store.Open(m.StorePath())
		if err != nil {
			return nil, nil, fmt.Errorf("opening program store: %w", err)
		}
		defer s.Close()
		p, err := s.Get(storeName)
		if err != nil {
			return nil, nil, err
		}
		return p, args, nil
	}

	path := m.ImagePath()
	if len(args) > 0 {
		path, args = args[0], args[1:]
	}
	if path == "" {
		return nil, nil, errNoImage
	}

	p, err := readImage(path)
	if err != nil {
		return nil, nil, err
	}
	return p, args, nil
}

var errNoImage = errors.New("no program image given and no [project] image in cellvm.toml")

func readImage(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func openStore(m *manifest.Manifest) *store.Programs {
	s, err := store.Open(m.StorePath())
	if err != nil {
		fatalf("Error opening program store: %v", err)
	}
	return s
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
