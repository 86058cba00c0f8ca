package vm

import (
	"time"
)

// PollResult is the outcome of polling an operation: Pending, or Ready with
// a value. Ready results of tasks that finished with RETURN carry no value.
type PollResult struct {
	ready    bool
	hasValue bool
	value    Cell
}

// Pending reports no progress.
func Pending() PollResult {
	return PollResult{}
}

// Ready reports completion with a value.
func Ready(v Cell) PollResult {
	return PollResult{ready: true, hasValue: true, value: v}
}

// ReadyVoid reports completion without a value.
func ReadyVoid() PollResult {
	return PollResult{ready: true}
}

// IsReady reports whether the operation completed.
func (r PollResult) IsReady() bool {
	return r.ready
}

// Value returns the produced value and whether there is one.
func (r PollResult) Value() (Cell, bool) {
	return r.value, r.hasValue
}

// Pollable is an operation supplied by an external collaborator (I/O,
// timers, channels, other tasks). Each Poll either reports Pending or
// Ready; after Ready the operation is spent and must not be polled again.
type Pollable interface {
	Poll() (PollResult, error)
}

// PollFunc adapts a function to Pollable.
type PollFunc func() (PollResult, error)

func (f PollFunc) Poll() (PollResult, error) {
	return f()
}

// Once guards op so polling it after Ready fails with
// ErrPolledAfterCompletion instead of reaching op.
func Once(op Pollable) Pollable {
	if o, ok := op.(*onceOp); ok {
		return o
	}
	return &onceOp{op: op}
}

type onceOp struct {
	op    Pollable
	spent bool
}

func (o *onceOp) Poll() (PollResult, error) {
	if o.spent {
		return PollResult{}, ErrPolledAfterCompletion
	}
	res, err := o.op.Poll()
	if err != nil || res.ready {
		o.spent = true
	}
	return res, err
}

// ReadyAfter reports Pending for the first n-1 polls and Ready(v) on the
// n-th.
func ReadyAfter(n int, v Cell) Pollable {
	polls := 0
	return Once(PollFunc(func() (PollResult, error) {
		polls++
		if polls < n {
			return Pending(), nil
		}
		return Ready(v), nil
	}))
}

// Timer reports Ready(v) once d has elapsed since it was created. A
// timeout is modelled as an ordinary pollable.
func Timer(d time.Duration, v Cell) Pollable {
	deadline := time.Now().Add(d)
	return Once(PollFunc(func() (PollResult, error) {
		if time.Now().Before(deadline) {
			return Pending(), nil
		}
		return Ready(v), nil
	}))
}

// Receive reports Ready with the next value sent on ch. Polling never
// blocks; a closed channel fails with ErrChannelClosed.
func Receive(ch <-chan Cell) Pollable {
	return Once(PollFunc(func() (PollResult, error) {
		select {
		case v, ok := <-ch:
			if !ok {
				return PollResult{}, ErrChannelClosed
			}
			return Ready(v), nil
		default:
			return Pending(), nil
		}
	}))
}
