package vm

import "github.com/chazu/cellvm/pkg/bytecode"

// Frame is one active invocation. It refers to its function by id and owns
// the stack region starting at Base.
type Frame struct {
	Func       bytecode.FuncID
	PC         int
	Base       int    // First stack index of this frame's region
	Locals     []Cell // Arguments first, in argument order
	ReturnAddr int    // PC to resume in the caller, -1 for the bottom frame
	Partition  int    // Partition cursor, meaningful for async functions
}

// CallStack is the chain of frames of one execution context. The top frame
// is always the one executing.
type CallStack struct {
	frames []*Frame
	limit  int
}

// NewCallStack creates an empty call stack. A limit of 0 means unbounded.
func NewCallStack(limit int) *CallStack {
	return &CallStack{frames: make([]*Frame, 0, 16), limit: limit}
}

// Push makes f the executing frame.
func (cs *CallStack) Push(f *Frame) error {
	if cs.limit > 0 && len(cs.frames) >= cs.limit {
		return ErrCallDepthExceeded
	}
	cs.frames = append(cs.frames, f)
	return nil
}

// Pop removes and returns the executing frame, or nil if empty.
func (cs *CallStack) Pop() *Frame {
	n := len(cs.frames)
	if n == 0 {
		return nil
	}
	f := cs.frames[n-1]
	cs.frames[n-1] = nil
	cs.frames = cs.frames[:n-1]
	return f
}

// Top returns the executing frame, or nil if empty.
func (cs *CallStack) Top() *Frame {
	if len(cs.frames) == 0 {
		return nil
	}
	return cs.frames[len(cs.frames)-1]
}

// Bottom returns the first frame pushed, or nil if empty.
func (cs *CallStack) Bottom() *Frame {
	if len(cs.frames) == 0 {
		return nil
	}
	return cs.frames[0]
}

// Depth returns the number of active frames.
func (cs *CallStack) Depth() int {
	return len(cs.frames)
}

// thread is an execution context: a stack and the frames running on it.
// The synchronous context and every task each own one.
type thread struct {
	stack  *Stack
	frames *CallStack
	task   *Task // nil in the synchronous context

	result   Cell
	hasValue bool
	exitCode int32
}

func newThread(frameLimit int, task *Task) *thread {
	return &thread{
		stack:  NewStack(),
		frames: NewCallStack(frameLimit),
		task:   task,
	}
}

// enter pushes a frame for fn with args copied into its locals.
func (th *thread) enter(fn *bytecode.Function, args []Cell, returnAddr int) error {
	locals := make([]Cell, fn.Locals)
	copy(locals, args)
	f := &Frame{
		Func:       fn.ID,
		Base:       th.stack.Len(),
		Locals:     locals,
		ReturnAddr: returnAddr,
	}
	if err := th.frames.Push(f); err != nil {
		return err
	}
	th.stack.setFloor(f.Base)
	return nil
}

// leave pops the executing frame and discards its stack region. It returns
// the popped frame and the caller, which is nil when the bottom frame left.
func (th *thread) leave() (done, caller *Frame) {
	done = th.frames.Pop()
	th.stack.setFloor(0)
	th.stack.truncate(done.Base)
	caller = th.frames.Top()
	if caller != nil {
		caller.PC = done.ReturnAddr
		th.stack.setFloor(caller.Base)
	}
	return done, caller
}
