package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// handleEntry is one slot of the handle table: either a task or an
// external operation.
type handleEntry struct {
	task      *Task
	op        Pollable
	cancelled bool
}

// Scheduler drives tasks cooperatively. Nothing runs until PollAll (or a
// synchronous POLL, which calls PollAll) gives tasks a turn.
//
// Handles are cells naming entries of the handle table. Task handles and
// operation handles share one monotonic id space starting at 1; an entry is
// removed once its result has been delivered, so a handle can be consumed
// exactly once.
type Scheduler struct {
	vm         *VM
	tasks      []*Task // Live tasks in spawn order
	handles    map[Cell]*handleEntry
	nextHandle Cell
	nextTask   int
	passes     int
	log        commonlog.Logger
}

func newScheduler(vm *VM) *Scheduler {
	return &Scheduler{
		vm:         vm,
		handles:    make(map[Cell]*handleEntry),
		nextHandle: 1,
		nextTask:   1,
		log:        commonlog.GetLogger("cellvm.scheduler"),
	}
}

func (s *Scheduler) allocHandle(e *handleEntry) Cell {
	h := s.nextHandle
	s.nextHandle++
	s.handles[h] = e
	return h
}

// Spawn creates a task running fn with args in its first locals. The task
// starts at partition 0 and does not run until the next pass.
func (s *Scheduler) Spawn(fn *bytecode.Function, args []Cell) (*TaskHandle, error) {
	if len(args) != fn.Arity {
		return nil, fmt.Errorf("%s: %w: got %d arguments, want %d", fn.Name, ErrArityMismatch, len(args), fn.Arity)
	}

	t := &Task{id: s.nextTask, fn: fn, state: TaskRunnable}
	t.th = newThread(s.vm.cfg.frameLimit, t)
	if err := t.th.enter(fn, args, -1); err != nil {
		return nil, err
	}
	s.nextTask++
	t.handle = s.allocHandle(&handleEntry{task: t})
	s.tasks = append(s.tasks, t)

	s.log.Debugf("[%s] spawn task %d %s handle=%d", s.vm.runID, t.id, fn.Name, t.handle)
	return &TaskHandle{sched: s, cell: t.handle, task: t}, nil
}

// Register adds an external operation to the handle table and returns its
// handle. The operation is not polled until someone awaits it.
func (s *Scheduler) Register(op Pollable) Cell {
	return s.allocHandle(&handleEntry{op: Once(op)})
}

// PollAll gives every live task one turn, in spawn order. Tasks spawned
// during the pass get their turn in the same pass. It returns the number of
// tasks that made progress.
func (s *Scheduler) PollAll() int {
	s.passes++
	progressed := 0
	for i := 0; i < len(s.tasks); i++ {
		if s.turn(s.tasks[i]) {
			progressed++
		}
	}

	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.state.Terminal() {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
	return progressed
}

// turn runs t until it parks or retires. A parked task first polls what it
// waits on and makes no progress while that is pending.
func (s *Scheduler) turn(t *Task) bool {
	switch t.state {
	case TaskRunnable:
	case TaskParked:
		res, err := s.pollHandle(t.pending)
		if err != nil {
			s.fail(t, err)
			return true
		}
		if !res.IsReady() {
			return false
		}
		if err := s.resume(t, res); err != nil {
			s.fail(t, err)
			return true
		}
	default:
		return false
	}

	th := t.th
	status, err := s.vm.exec(context.Background(), th)
	if t.state.Terminal() {
		// Cancelled itself while running.
		return true
	}
	if err != nil {
		s.fail(t, err)
		return true
	}
	switch status {
	case statusReturned:
		if th.hasValue {
			t.result = Ready(th.result)
		} else {
			t.result = ReadyVoid()
		}
		t.retire(TaskCompleted)
		s.log.Debugf("[%s] task %d %s completed", s.vm.runID, t.id, t.fn.Name)
	case statusSuspended:
		s.log.Debugf("[%s] task %d %s parked on %d at partition %d", s.vm.runID, t.id, t.fn.Name, t.pending, t.Cursor())
	}
	return true
}

// resume delivers res to a parked task and moves it to the next partition.
func (s *Scheduler) resume(t *Task, res PollResult) error {
	fr := t.th.frames.Top()
	parts, err := s.vm.program.Partitions(s.vm.program.Func(fr.Func))
	if err != nil {
		return err
	}
	deliver(t.th.stack, res)
	advance(fr, parts, fr.Partition)
	t.state = TaskRunnable
	t.pending = 0
	return nil
}

func (s *Scheduler) fail(t *Task, err error) {
	t.err = &TaskError{TaskID: t.id, Func: t.fn.Name, Err: err}
	t.retire(TaskFailed)
	s.log.Warningf("[%s] %v", s.vm.runID, t.err)
}

func (s *Scheduler) lookup(h Cell) (*handleEntry, error) {
	e, ok := s.handles[h]
	if ok {
		return e, nil
	}
	if h > 0 && h < s.nextHandle {
		return nil, fmt.Errorf("%w: handle %d", ErrPolledAfterCompletion, h)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
}

// pollHandle polls the operation named by h. Polling a task handle reports
// the task's state without running it. Ready and failed results are handed
// out once, after which the handle is gone.
func (s *Scheduler) pollHandle(h Cell) (PollResult, error) {
	e, err := s.lookup(h)
	if err != nil {
		return PollResult{}, err
	}
	if e.cancelled {
		return PollResult{}, fmt.Errorf("%w: handle %d", ErrTaskCancelled, h)
	}

	if t := e.task; t != nil {
		switch t.state {
		case TaskCompleted:
			delete(s.handles, h)
			return t.result, nil
		case TaskFailed:
			delete(s.handles, h)
			return PollResult{}, t.err
		default:
			return Pending(), nil
		}
	}

	res, err := e.op.Poll()
	if err != nil || res.IsReady() {
		delete(s.handles, h)
	}
	return res, err
}

// cancel drops h. A live task behind it is never scheduled again and the
// operation it was parked on is released. Dropping a handle whose result was
// already delivered does nothing. The cancelled entry stays behind without
// its task so later polls keep reporting ErrTaskCancelled.
func (s *Scheduler) cancel(h Cell) error {
	e, err := s.lookup(h)
	if err != nil {
		if h > 0 && h < s.nextHandle {
			return nil
		}
		return err
	}
	e.cancelled = true
	e.op = nil
	if t := e.task; t != nil {
		e.task = nil
		if !t.state.Terminal() {
			if p, ok := s.handles[t.pending]; ok && t.state == TaskParked && p.op != nil {
				delete(s.handles, t.pending)
			}
			t.retire(TaskCancelled)
			s.log.Debugf("[%s] task %d %s cancelled", s.vm.runID, t.id, t.fn.Name)
		}
	}
	return nil
}

// Tasks returns the live tasks in spawn order.
func (s *Scheduler) Tasks() []*Task {
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.state.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

// Live returns the number of tasks that can still run.
func (s *Scheduler) Live() int {
	return len(s.Tasks())
}

// Passes returns the number of PollAll passes so far.
func (s *Scheduler) Passes() int {
	return s.passes
}

// Drain runs passes until no task is live. It pauses for the idle backoff
// after passes that made no progress and gives up with ErrStalled once the
// pass budget is spent.
func (s *Scheduler) Drain(ctx context.Context) error {
	start := s.passes
	for s.Live() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limit := s.vm.cfg.maxPasses; limit > 0 && s.passes-start >= limit {
			return fmt.Errorf("%w: %d tasks live after %d passes", ErrStalled, s.Live(), s.passes-start)
		}
		if s.PollAll() == 0 && s.vm.cfg.idleBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.vm.cfg.idleBackoff):
			}
		}
	}
	return nil
}
