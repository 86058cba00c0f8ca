package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// Errors surfaced by execution. ExecError and TaskError wrap them, so
// callers should match with errors.Is.
var (
	ErrStackUnderflow        = errors.New("stack underflow")
	ErrStackOverflow         = errors.New("stack overflow")
	ErrUnknownFunction       = errors.New("unknown function")
	ErrArityMismatch         = errors.New("arity mismatch")
	ErrInvalidStringLength   = errors.New("invalid string length")
	ErrPolledAfterCompletion = errors.New("polled after completion")
	ErrCallDepthExceeded     = errors.New("call depth exceeded")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrInvalidLocal          = errors.New("invalid local slot")
	ErrPCOutOfRange          = errors.New("program counter out of range")
	ErrUnknownHandle         = errors.New("unknown handle")
	ErrTaskCancelled         = errors.New("cancelled")
	ErrInvalidJump           = errors.New("invalid jump target")
	ErrSuspendOutsideAsync   = errors.New("suspension outside async function")
	ErrHaltInTask            = errors.New("HALT inside task")
	ErrStalled               = errors.New("await stalled")
	ErrChannelClosed         = errors.New("receive on closed channel")
	ErrAlreadyRunning        = errors.New("vm already running")
)

// ErrMissingEntryPoint is reported when a program has no MAIN function.
// Programs are validated at load time, so Run never returns it.
var ErrMissingEntryPoint = bytecode.ErrMissingEntryPoint

// ExecError reports the instruction that failed.
type ExecError struct {
	Func string
	PC   int
	Op   bytecode.Opcode
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s@%d (%s): %v", e.Func, e.PC, e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// TaskError is delivered to whoever awaits a task that failed.
type TaskError struct {
	TaskID int
	Func   string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s) failed: %v", e.TaskID, e.Func, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
