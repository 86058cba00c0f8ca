// Package vm executes cell bytecode programs.
//
// This package contains:
//   - The 4-byte Cell and the operand Stack with per-frame floors
//   - The string codec used by PUSH_STR and POP_STR
//   - Frames, call stacks and the synchronous interpreter
//   - Pollable operations and the cooperative task Scheduler
//   - Host natives (PRINT, PRINT_STR, SLEEP)
//
// MAIN runs on the synchronous context. Async functions run as tasks: CALL
// or ASYNC_CALL of one pushes a handle and returns at once, and the task
// only advances when the scheduler polls it. A task that reaches POLL on a
// pending operation parks at the end of its current partition and resumes
// at the start of the next one once the operation is ready.
package vm
