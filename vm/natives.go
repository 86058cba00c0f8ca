package vm

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Host natives
// ---------------------------------------------------------------------------

func (vm *VM) registerBuiltins() {
	// PRINT: pop a cell, print it as a signed integer
	vm.RegisterNative("PRINT", 1, func(v *VM, st *Stack) error {
		c, err := st.Pop()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(v.Output(), c.Int())
		return err
	})

	// PRINT_STR: pop a length, then the string it describes
	vm.RegisterNative("PRINT_STR", 1, func(v *VM, st *Stack) error {
		b, err := st.PopSizedString()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(v.Output(), string(b))
		return err
	})
}

// RegisterSleep makes ASYNC_CALL SLEEP available: it pops a duration in
// milliseconds and becomes ready, without a value, once it has elapsed.
func (vm *VM) RegisterSleep() {
	vm.RegisterAsync("SLEEP", 1, func(args []Cell) (Pollable, error) {
		ms := args[0].Int()
		if ms < 0 {
			return nil, fmt.Errorf("negative sleep: %d ms", ms)
		}
		deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
		return PollFunc(func() (PollResult, error) {
			if time.Now().Before(deadline) {
				return Pending(), nil
			}
			return ReadyVoid(), nil
		}), nil
	})
}
