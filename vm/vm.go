package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// NativeFunc implements a host function reachable through CALL. It pops
// its own arguments; at least arity cells are guaranteed to be available.
type NativeFunc func(vm *VM, st *Stack) error

// AsyncNative starts an external operation for ASYNC_CALL. It receives
// its arguments in order and returns the operation to poll.
type AsyncNative func(args []Cell) (Pollable, error)

type native struct {
	arity int
	fn    NativeFunc
}

type asyncNative struct {
	arity int
	fn    AsyncNative
}

// StepHook observes every instruction right before it executes.
type StepHook func(Step)

// Step describes the instruction about to execute.
type Step struct {
	Func        *bytecode.Function
	PC          int
	Instruction bytecode.Instruction
	Depth       int // Frames in the executing context
	StackLen    int
	Task        int // Task id, 0 in the synchronous context
}

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	stackLimit  int
	frameLimit  int
	maxPasses   int
	idleBackoff time.Duration
	out         io.Writer
	trace       bool
	hook        StepHook
}

// WithStackLimit caps the cells of each operand stack. 0 means unbounded.
func WithStackLimit(n int) Option {
	return func(c *vmConfig) { c.stackLimit = n }
}

// WithFrameLimit caps the depth of each call stack. 0 means unbounded.
func WithFrameLimit(n int) Option {
	return func(c *vmConfig) { c.frameLimit = n }
}

// WithMaxPasses bounds the scheduler passes a synchronous POLL may drive
// before failing with ErrStalled. 0 means unbounded.
func WithMaxPasses(n int) Option {
	return func(c *vmConfig) { c.maxPasses = n }
}

// WithIdleBackoff sets the pause between scheduler passes that made no
// progress while a synchronous POLL waits.
func WithIdleBackoff(d time.Duration) Option {
	return func(c *vmConfig) { c.idleBackoff = d }
}

// WithOutput sets where PRINT and PRINT_STR write.
func WithOutput(w io.Writer) Option {
	return func(c *vmConfig) { c.out = w }
}

// WithTrace logs every instruction at debug level.
func WithTrace(on bool) Option {
	return func(c *vmConfig) { c.trace = on }
}

// WithStepHook installs an observer called before every instruction.
func WithStepHook(h StepHook) Option {
	return func(c *vmConfig) { c.hook = h }
}

// Default limits.
const (
	DefaultStackLimit  = 1 << 20
	DefaultFrameLimit  = 1 << 12
	DefaultIdleBackoff = time.Millisecond
)

// VM executes a program. The synchronous call stack exists only for the
// duration of Run; tasks live in the scheduler across runs.
// A VM is not safe for concurrent use.
type VM struct {
	program      *bytecode.Program
	natives      map[string]native
	asyncNatives map[string]asyncNative
	sched        *Scheduler
	cfg          vmConfig
	log          commonlog.Logger
	runID        string
	running      bool
}

// Result is what MAIN produced.
type Result struct {
	Value    Cell // Returned by RETURN_VALUE from MAIN
	HasValue bool
	Halted   bool  // Stopped by HALT
	ExitCode int32 // HALT operand
}

// NewVM creates a VM for program with the PRINT and PRINT_STR natives
// registered.
func NewVM(program *bytecode.Program, opts ...Option) *VM {
	cfg := vmConfig{
		stackLimit:  DefaultStackLimit,
		frameLimit:  DefaultFrameLimit,
		idleBackoff: DefaultIdleBackoff,
		out:         os.Stdout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	vm := &VM{
		program:      program,
		natives:      make(map[string]native),
		asyncNatives: make(map[string]asyncNative),
		cfg:          cfg,
		log:          commonlog.GetLogger("cellvm.vm"),
		runID:        uuid.NewString(),
	}
	vm.sched = newScheduler(vm)
	vm.registerBuiltins()
	return vm
}

// Program returns the program the VM executes.
func (vm *VM) Program() *bytecode.Program {
	return vm.program
}

// Scheduler returns the task scheduler.
func (vm *VM) Scheduler() *Scheduler {
	return vm.sched
}

// RunID identifies this VM in log output.
func (vm *VM) RunID() string {
	return vm.runID
}

// RegisterNative makes fn callable by CALL name. Program functions take
// precedence over natives of the same name.
func (vm *VM) RegisterNative(name string, arity int, fn NativeFunc) {
	vm.natives[name] = native{arity: arity, fn: fn}
}

// RegisterAsync makes fn startable by ASYNC_CALL name.
func (vm *VM) RegisterAsync(name string, arity int, fn AsyncNative) {
	vm.asyncNatives[name] = asyncNative{arity: arity, fn: fn}
}

// Output returns the writer used by printing natives.
func (vm *VM) Output() io.Writer {
	return vm.cfg.out
}

// Run executes MAIN with args as its arguments and returns when MAIN's
// frame returns or HALT executes. Cancelling ctx interrupts a synchronous
// POLL that is waiting on the scheduler.
func (vm *VM) Run(ctx context.Context, args ...Cell) (Result, error) {
	if vm.running {
		return Result{}, ErrAlreadyRunning
	}
	vm.running = true
	defer func() { vm.running = false }()

	main := vm.program.Entry()
	if len(args) != main.Arity {
		return Result{}, fmt.Errorf("%s: %w: got %d arguments, want %d", main.Name, ErrArityMismatch, len(args), main.Arity)
	}

	th := newThread(vm.cfg.frameLimit, nil)
	if err := th.enter(main, args, -1); err != nil {
		return Result{}, err
	}
	vm.log.Debugf("[%s] run %s", vm.runID, main.Name)

	status, err := vm.exec(ctx, th)
	if err != nil {
		vm.log.Errorf("[%s] run failed: %v", vm.runID, err)
		return Result{}, err
	}

	res := Result{Value: th.result, HasValue: th.hasValue}
	if status == statusHalted {
		res.Halted = true
		res.ExitCode = th.exitCode
	}
	vm.log.Debugf("[%s] run finished: value=%d halted=%t exit=%d", vm.runID, res.Value, res.Halted, res.ExitCode)
	return res, nil
}

// Spawn starts the named program function as a task without running it.
func (vm *VM) Spawn(name string, args ...Cell) (*TaskHandle, error) {
	fn, ok := vm.program.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return vm.sched.Spawn(fn, args)
}
