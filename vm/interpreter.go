package vm

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chazu/cellvm/pkg/bytecode"
)

type execStatus int

const (
	statusRunning   execStatus = iota
	statusReturned             // Bottom frame returned
	statusSuspended            // Task parked on a pending POLL
	statusHalted               // HALT in the synchronous context
)

// exec is the fetch-decode-execute loop. It runs th until its bottom frame
// returns, the task parks, HALT executes or an instruction fails.
func (vm *VM) exec(ctx context.Context, th *thread) (execStatus, error) {
	for {
		fr := th.frames.Top()
		fn := vm.program.Func(fr.Func)
		if fr.PC < 0 || fr.PC >= len(fn.Code) {
			return 0, &ExecError{Func: fn.Name, PC: fr.PC, Op: bytecode.OpNop, Err: ErrPCOutOfRange}
		}
		ins := &fn.Code[fr.PC]

		if vm.cfg.hook != nil || vm.cfg.trace {
			vm.observe(th, fr, fn, ins)
		}

		status, err := vm.step(ctx, th, fr, fn, ins)
		if err != nil {
			return 0, &ExecError{Func: fn.Name, PC: fr.PC, Op: ins.Op, Err: err}
		}
		if vm.cfg.stackLimit > 0 && th.stack.Len() > vm.cfg.stackLimit {
			return 0, &ExecError{Func: fn.Name, PC: fr.PC, Op: ins.Op, Err: ErrStackOverflow}
		}
		if status != statusRunning {
			return status, nil
		}
	}
}

func (vm *VM) observe(th *thread, fr *Frame, fn *bytecode.Function, ins *bytecode.Instruction) {
	taskID := 0
	if th.task != nil {
		taskID = th.task.id
	}
	if vm.cfg.trace {
		vm.log.Debugf("[%s] t%d %s %04d %-24s depth=%d sp=%d", vm.runID, taskID, fn.Name, fr.PC, ins, th.frames.Depth(), th.stack.Len())
	}
	if vm.cfg.hook != nil {
		vm.cfg.hook(Step{
			Func:        fn,
			PC:          fr.PC,
			Instruction: *ins,
			Depth:       th.frames.Depth(),
			StackLen:    th.stack.Len(),
			Task:        taskID,
		})
	}
}

// step executes one instruction. Instructions that do not transfer control
// advance fr.PC themselves.
func (vm *VM) step(ctx context.Context, th *thread, fr *Frame, fn *bytecode.Function, ins *bytecode.Instruction) (execStatus, error) {
	st := th.stack

	switch ins.Op {
	// ============ Stack Operations ============
	case bytecode.OpNop:
		// Do nothing

	case bytecode.OpLoadVal:
		st.Push(Cell(ins.Arg))

	case bytecode.OpPop:
		if _, err := st.Pop(); err != nil {
			return 0, err
		}

	case bytecode.OpDup:
		c, err := st.Peek(0)
		if err != nil {
			return 0, err
		}
		st.Push(c)

	case bytecode.OpSwap:
		b, err := st.Pop()
		if err != nil {
			return 0, err
		}
		a, err := st.Pop()
		if err != nil {
			return 0, err
		}
		st.Push(b)
		st.Push(a)

	case bytecode.OpPeek:
		c, err := st.Peek(int(ins.Arg))
		if err != nil {
			return 0, err
		}
		st.Push(c)

	// ============ Local Variables ============
	case bytecode.OpLoadLocal:
		if ins.Arg < 0 || int(ins.Arg) >= len(fr.Locals) {
			return 0, fmt.Errorf("%w: %d", ErrInvalidLocal, ins.Arg)
		}
		st.Push(fr.Locals[ins.Arg])

	case bytecode.OpStoreLocal:
		if ins.Arg < 0 || int(ins.Arg) >= len(fr.Locals) {
			return 0, fmt.Errorf("%w: %d", ErrInvalidLocal, ins.Arg)
		}
		c, err := st.Pop()
		if err != nil {
			return 0, err
		}
		fr.Locals[ins.Arg] = c

	// ============ Arithmetic ============
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		b, err := st.Pop()
		if err != nil {
			return 0, err
		}
		a, err := st.Pop()
		if err != nil {
			return 0, err
		}
		r, err := arith(ins.Op, a, b)
		if err != nil {
			return 0, err
		}
		st.Push(r)

	case bytecode.OpIncr:
		c, err := st.Pop()
		if err != nil {
			return 0, err
		}
		st.Push(c + 1)

	case bytecode.OpDecr:
		c, err := st.Pop()
		if err != nil {
			return 0, err
		}
		st.Push(c - 1)

	// ============ Comparison ============
	case bytecode.OpCmp:
		rhs, err := st.Pop()
		if err != nil {
			return 0, err
		}
		lhs, err := st.Pop()
		if err != nil {
			return 0, err
		}
		st.Push(compare(lhs, rhs))

	case bytecode.OpCmpStr:
		rhs, err := st.PopSizedString()
		if err != nil {
			return 0, err
		}
		lhs, err := st.PopSizedString()
		if err != nil {
			return 0, err
		}
		st.Push(Cell(bytes.Compare(lhs, rhs)))

	// ============ Strings ============
	case bytecode.OpPushStr:
		st.PushString(ins.Str)

	case bytecode.OpPopStr:
		n := ins.Arg
		if n == bytecode.LenFromStack {
			c, err := st.Pop()
			if err != nil {
				return 0, err
			}
			n = c.Int()
		}
		if _, err := st.PopString(int(n)); err != nil {
			return 0, err
		}

	// ============ Control Flow ============
	case bytecode.OpJmp:
		return vm.jump(fr, fn, ins.Arg)

	case bytecode.OpJe, bytecode.OpJne, bytecode.OpJg, bytecode.OpJl:
		c, err := st.Pop()
		if err != nil {
			return 0, err
		}
		if branchTaken(ins.Op, c) {
			return vm.jump(fr, fn, ins.Arg)
		}

	// ============ Calls ============
	case bytecode.OpCall:
		return vm.call(th, fr, ins)

	case bytecode.OpReturn, bytecode.OpReturnValue:
		return vm.ret(th, ins.Op == bytecode.OpReturnValue)

	case bytecode.OpHalt:
		if th.task != nil {
			return 0, ErrHaltInTask
		}
		th.exitCode = ins.Arg
		return statusHalted, nil

	// ============ Async ============
	case bytecode.OpAsyncCall:
		h, err := vm.asyncCall(th, ins)
		if err != nil {
			return 0, err
		}
		st.Push(h)

	case bytecode.OpPoll:
		return vm.poll(ctx, th, fr, fn)

	case bytecode.OpCancel:
		h, err := st.Pop()
		if err != nil {
			return 0, err
		}
		if err := vm.sched.cancel(h); err != nil {
			return 0, err
		}
		if th.task != nil && th.task.state.Terminal() {
			return statusSuspended, nil
		}

	default:
		return 0, fmt.Errorf("%w: 0x%02x", bytecode.ErrInvalidOpcode, byte(ins.Op))
	}

	fr.PC++
	return statusRunning, nil
}

func arith(op bytecode.Opcode, a, b Cell) (Cell, error) {
	switch op {
	case bytecode.OpAdd:
		return a + b, nil
	case bytecode.OpSub:
		return a - b, nil
	case bytecode.OpMul:
		return a * b, nil
	case bytecode.OpDiv:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	default:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a % b, nil
	}
}

func compare(lhs, rhs Cell) Cell {
	switch {
	case lhs == rhs:
		return 0
	case lhs > rhs:
		return 1
	default:
		return -1
	}
}

func branchTaken(op bytecode.Opcode, c Cell) bool {
	switch op {
	case bytecode.OpJe:
		return c == 0
	case bytecode.OpJne:
		return c != 0
	case bytecode.OpJg:
		return c == 1
	default:
		return c == -1
	}
}

func (vm *VM) jump(fr *Frame, fn *bytecode.Function, target int32) (execStatus, error) {
	if target < 0 || int(target) >= len(fn.Code) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidJump, target)
	}
	fr.PC = int(target)
	return statusRunning, nil
}

// call implements CALL. Async targets become tasks and leave a handle on
// the caller's stack; natives run in place; everything else gets a frame.
func (vm *VM) call(th *thread, fr *Frame, ins *bytecode.Instruction) (execStatus, error) {
	st := th.stack
	target := vm.program.Func(ins.Target)
	if target == nil {
		nat, ok := vm.natives[ins.Name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, ins.Name)
		}
		if st.Available() < nat.arity {
			return 0, fmt.Errorf("%s: %w: %d cells available, want %d", ins.Name, ErrArityMismatch, st.Available(), nat.arity)
		}
		if err := nat.fn(vm, st); err != nil {
			return 0, fmt.Errorf("%s: %w", ins.Name, err)
		}
		fr.PC++
		return statusRunning, nil
	}

	args, err := vm.popArgs(st, target.Name, target.Arity)
	if err != nil {
		return 0, err
	}

	if target.Async {
		h, err := vm.sched.Spawn(target, args)
		if err != nil {
			return 0, err
		}
		st.Push(h.Cell())
		fr.PC++
		return statusRunning, nil
	}

	if err := th.enter(target, args, fr.PC+1); err != nil {
		return 0, err
	}
	return statusRunning, nil
}

func (vm *VM) popArgs(st *Stack, name string, arity int) ([]Cell, error) {
	if st.Available() < arity {
		return nil, fmt.Errorf("%s: %w: %d cells available, want %d", name, ErrArityMismatch, st.Available(), arity)
	}
	return st.PopN(arity)
}

// ret implements RETURN and RETURN_VALUE.
func (vm *VM) ret(th *thread, withValue bool) (execStatus, error) {
	var v Cell
	if withValue {
		c, err := th.stack.Pop()
		if err != nil {
			return 0, err
		}
		v = c
	}

	_, caller := th.leave()
	if caller == nil {
		th.result, th.hasValue = v, withValue
		return statusReturned, nil
	}
	if withValue {
		th.stack.Push(v)
	}
	return statusRunning, nil
}

// asyncCall implements ASYNC_CALL: program functions are spawned as tasks,
// async natives start an external operation. Either way a handle is
// returned without running anything.
func (vm *VM) asyncCall(th *thread, ins *bytecode.Instruction) (Cell, error) {
	st := th.stack
	if target := vm.program.Func(ins.Target); target != nil {
		args, err := vm.popArgs(st, target.Name, target.Arity)
		if err != nil {
			return 0, err
		}
		h, err := vm.sched.Spawn(target, args)
		if err != nil {
			return 0, err
		}
		return h.Cell(), nil
	}

	nat, ok := vm.asyncNatives[ins.Name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, ins.Name)
	}
	args, err := vm.popArgs(st, ins.Name, nat.arity)
	if err != nil {
		return 0, err
	}
	op, err := nat.fn(args)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ins.Name, err)
	}
	return vm.sched.Register(op), nil
}

// poll implements POLL on the handle at the top of the stack. The handle
// stays on the stack until the operation is ready.
func (vm *VM) poll(ctx context.Context, th *thread, fr *Frame, fn *bytecode.Function) (execStatus, error) {
	h, err := th.stack.Peek(0)
	if err != nil {
		return 0, err
	}

	if th.task == nil {
		res, err := vm.blockOn(ctx, h)
		if err != nil {
			return 0, err
		}
		deliver(th.stack, res)
		fr.PC++
		return statusRunning, nil
	}

	if !fn.Async {
		return 0, ErrSuspendOutsideAsync
	}
	parts, err := vm.program.Partitions(fn)
	if err != nil {
		return 0, err
	}
	cursor := bytecode.PartitionAt(parts, fr.PC)

	res, err := vm.sched.pollHandle(h)
	if err != nil {
		return 0, err
	}
	if !res.IsReady() {
		fr.Partition = cursor
		th.task.park(h)
		return statusSuspended, nil
	}
	deliver(th.stack, res)
	advance(fr, parts, cursor)
	return statusRunning, nil
}

// deliver replaces the handle on top of the stack with the result.
func deliver(st *Stack, res PollResult) {
	st.Pop()
	if v, ok := res.Value(); ok {
		st.Push(v)
	}
}

// advance moves fr to the start of the partition after cursor.
func advance(fr *Frame, parts []bytecode.Partition, cursor int) {
	fr.Partition = cursor + 1
	fr.PC = parts[cursor+1].Start
}

// blockOn drives the scheduler until handle h resolves. It is how the
// synchronous context awaits.
func (vm *VM) blockOn(ctx context.Context, h Cell) (PollResult, error) {
	passes := 0
	for {
		res, err := vm.sched.pollHandle(h)
		if err != nil || res.IsReady() {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return PollResult{}, err
		}
		if vm.cfg.maxPasses > 0 && passes >= vm.cfg.maxPasses {
			return PollResult{}, fmt.Errorf("%w: handle %d pending after %d passes", ErrStalled, h, passes)
		}
		passes++
		if vm.sched.PollAll() == 0 && vm.cfg.idleBackoff > 0 {
			select {
			case <-ctx.Done():
				return PollResult{}, ctx.Err()
			case <-time.After(vm.cfg.idleBackoff):
			}
		}
	}
}
