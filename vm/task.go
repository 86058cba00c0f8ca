package vm

import "github.com/chazu/cellvm/pkg/bytecode"

// TaskState is the lifecycle state of a task.
type TaskState int

const (
	TaskRunnable TaskState = iota
	TaskParked
	TaskCompleted
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskParked:
		return "parked"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether a task in state s will never run again.
func (s TaskState) Terminal() bool {
	return s >= TaskCompleted
}

// Task is a suspended invocation of an async function. It owns its stack
// and call stack; the bottom frame's partition cursor records where it
// resumes.
type Task struct {
	id      int
	handle  Cell
	fn      *bytecode.Function
	th      *thread
	state   TaskState
	pending Cell // Handle being awaited while parked
	cursor  int

	result PollResult
	err    error
}

// ID returns the task id. Ids start at 1.
func (t *Task) ID() int { return t.id }

// Handle returns the cell awaiters poll.
func (t *Task) Handle() Cell { return t.handle }

// Func returns the spawned function.
func (t *Task) Func() *bytecode.Function { return t.fn }

// State returns the lifecycle state.
func (t *Task) State() TaskState { return t.state }

// Pending returns the handle the task is parked on.
func (t *Task) Pending() (Cell, bool) {
	return t.pending, t.state == TaskParked
}

// Cursor returns the index of the partition the task is in or will resume
// at.
func (t *Task) Cursor() int {
	if t.th != nil {
		if bottom := t.th.frames.Bottom(); bottom != nil {
			return bottom.Partition
		}
	}
	return t.cursor
}

// StackLen returns the number of cells on the task's stack.
func (t *Task) StackLen() int {
	if t.th == nil {
		return 0
	}
	return t.th.stack.Len()
}

// Result returns the outcome of a finished task: the value of a completed
// task or the *TaskError of a failed one.
func (t *Task) Result() (PollResult, error) {
	return t.result, t.err
}

// park records that t waits on h. A task that cancelled itself stays
// cancelled.
func (t *Task) park(h Cell) {
	if t.state != TaskRunnable {
		return
	}
	t.state = TaskParked
	t.pending = h
}

// retire drops the execution context once the task can no longer run.
func (t *Task) retire(state TaskState) {
	t.cursor = t.Cursor()
	t.state = state
	t.pending = 0
	t.th = nil
}

// TaskHandle is the host's reference to a spawned task. It is itself a
// Pollable: polling it is the same as POLL on its handle cell.
type TaskHandle struct {
	sched *Scheduler
	cell  Cell
	task  *Task
}

// Cell returns the handle as pushed on an operand stack.
func (h *TaskHandle) Cell() Cell { return h.cell }

// Task returns the underlying task.
func (h *TaskHandle) Task() *Task { return h.task }

// Poll reports Ready once the task completed, or its failure.
func (h *TaskHandle) Poll() (PollResult, error) {
	return h.sched.pollHandle(h.cell)
}

// Drop cancels the task. It is never scheduled again and polling the handle
// afterwards fails with ErrTaskCancelled.
func (h *TaskHandle) Drop() error {
	return h.sched.cancel(h.cell)
}
