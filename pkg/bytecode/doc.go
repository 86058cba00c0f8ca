// Package bytecode defines the program text executed by the cell VM:
// opcodes, instructions, functions and the program arena that owns them.
//
// Programs are immutable once constructed. Frames and tasks in package vm
// refer to code by FuncID and program counter, never by copy.
//
// # Architecture Overview
//
//   - Opcodes: stack instructions covering arithmetic, comparison, jumps,
//     locals, packed strings, calls and async suspension points
//
//   - Program: functions indexed by FuncID with a name table. NewProgram
//     links CALL/ASYNC_CALL names to function ids and rejects programs
//     without a MAIN function.
//
//   - Builder: emits instructions and resolves jump labels. Textual
//     assembly is left to external tools.
//
//   - Partitioner: splits async functions at suspension points. A new
//     partition starts before every ASYNC_CALL and after every POLL; the
//     result is cached per function and shared by every task.
//
//   - Images: programs serialize to canonical CBOR for storage or
//     transport between processes.
//
// # Jumps
//
// Jump operands are absolute instruction offsets within the enclosing
// function. Conditional jumps consume a CMP result: JE jumps on 0, JNE on
// anything else, JG on 1 and JL on -1.
package bytecode
