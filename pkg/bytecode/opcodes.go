package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop     Opcode = 0x00 // No operation
	OpLoadVal Opcode = 0x01 // Push immediate: LOAD_VAL <arg>
	OpPop     Opcode = 0x02 // Pop top of stack
	OpDup     Opcode = 0x03 // Duplicate top of stack
	OpSwap    Opcode = 0x04 // Swap top two cells
	OpPeek    Opcode = 0x05 // Push a copy of the cell <arg> below the top

	// ========================================================================
	// Local variables (0x10-0x1F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x10 // Push local slot: LOAD_LOCAL <slot>
	OpStoreLocal Opcode = 0x11 // Pop and store to local slot: STORE_LOCAL <slot>

	// ========================================================================
	// Arithmetic (0x20-0x2F)
	// ========================================================================

	OpAdd  Opcode = 0x20 // Pop two, push sum
	OpSub  Opcode = 0x21 // Pop two, push difference (a - b where b is TOS)
	OpMul  Opcode = 0x22 // Pop two, push product
	OpDiv  Opcode = 0x23 // Pop two, push quotient
	OpMod  Opcode = 0x24 // Pop two, push remainder
	OpIncr Opcode = 0x25 // Increment top of stack
	OpDecr Opcode = 0x26 // Decrement top of stack

	// ========================================================================
	// Comparison (0x30-0x3F)
	// ========================================================================

	OpCmp    Opcode = 0x30 // Pop rhs, pop lhs, push 0 (eq), 1 (gt) or -1 (lt)
	OpCmpStr Opcode = 0x31 // Same as CMP over two length-prefixed strings

	// ========================================================================
	// Strings (0x40-0x4F)
	// ========================================================================

	OpPushStr Opcode = 0x40 // Push packed string cells: PUSH_STR <str>
	OpPopStr  Opcode = 0x41 // Pop packed string of <arg> bytes (or length from stack)

	// ========================================================================
	// Control flow (0x50-0x5F)
	// ========================================================================

	OpJmp Opcode = 0x50 // Unconditional jump: JMP <target>
	OpJe  Opcode = 0x51 // Jump if CMP result is equal
	OpJne Opcode = 0x52 // Jump if CMP result is not equal
	OpJg  Opcode = 0x53 // Jump if CMP result is greater
	OpJl  Opcode = 0x54 // Jump if CMP result is less

	// ========================================================================
	// Calls (0x60-0x6F)
	// ========================================================================

	OpCall        Opcode = 0x60 // Call function: CALL <name>
	OpReturn      Opcode = 0x61 // Return without a value
	OpReturnValue Opcode = 0x62 // Pop and return a value to the caller
	OpHalt        Opcode = 0x63 // Stop the program: HALT <exit code>

	// ========================================================================
	// Async (0x70-0x7F)
	// ========================================================================

	OpAsyncCall Opcode = 0x70 // Start async operation, push handle: ASYNC_CALL <name>
	OpPoll      Opcode = 0x71 // Poll handle on top of stack, suspend if pending
	OpCancel    Opcode = 0x72 // Pop handle and cancel it
)

// OperandKind describes which Instruction field an opcode reads.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandArg              // Instruction.Arg
	OperandName             // Instruction.Name (function reference)
	OperandStr              // Instruction.Str
	OperandJump             // Instruction.Arg as an absolute target
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string      // Mnemonic
	StackPop  int         // How many cells popped from stack (-1 = variable)
	StackPush int         // How many cells pushed to stack (-1 = variable)
	Operand   OperandKind // Operand carried by the instruction
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:     {"NOP", 0, 0, OperandNone},
	OpLoadVal: {"LOAD_VAL", 0, 1, OperandArg},
	OpPop:     {"POP", 1, 0, OperandNone},
	OpDup:     {"DUP", 1, 2, OperandNone},
	OpSwap:    {"SWAP", 2, 2, OperandNone},
	OpPeek:    {"PEEK", 0, 1, OperandArg},

	// Locals
	OpLoadLocal:  {"LOAD_LOCAL", 0, 1, OperandArg},
	OpStoreLocal: {"STORE_LOCAL", 1, 0, OperandArg},

	// Arithmetic
	OpAdd:  {"ADD", 2, 1, OperandNone},
	OpSub:  {"SUB", 2, 1, OperandNone},
	OpMul:  {"MUL", 2, 1, OperandNone},
	OpDiv:  {"DIV", 2, 1, OperandNone},
	OpMod:  {"MOD", 2, 1, OperandNone},
	OpIncr: {"INCR", 1, 1, OperandNone},
	OpDecr: {"DECR", 1, 1, OperandNone},

	// Comparison
	OpCmp:    {"CMP", 2, 1, OperandNone},
	OpCmpStr: {"CMP_STR", -1, 1, OperandNone},

	// Strings
	OpPushStr: {"PUSH_STR", 0, -1, OperandStr},
	OpPopStr:  {"POP_STR", -1, 0, OperandArg},

	// Control flow
	OpJmp: {"JMP", 0, 0, OperandJump},
	OpJe:  {"JE", 1, 0, OperandJump},
	OpJne: {"JNE", 1, 0, OperandJump},
	OpJg:  {"JG", 1, 0, OperandJump},
	OpJl:  {"JL", 1, 0, OperandJump},

	// Calls
	OpCall:        {"CALL", -1, -1, OperandName},
	OpReturn:      {"RETURN", 0, 0, OperandNone},
	OpReturnValue: {"RETURN_VALUE", 1, 0, OperandNone},
	OpHalt:        {"HALT", 0, 0, OperandArg},

	// Async
	OpAsyncCall: {"ASYNC_CALL", -1, 1, OperandName},
	OpPoll:      {"POLL", 1, -1, OperandNone},
	OpCancel:    {"CANCEL", 1, 0, OperandNone},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Operand returns the operand kind carried by instructions with this opcode.
func (op Opcode) Operand() OperandKind {
	return GetOpcodeInfo(op).Operand
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJl
}

// IsReturn returns true if this opcode leaves the current frame.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnValue
}

// IsCall returns true if this opcode names a function or async operation.
func (op Opcode) IsCall() bool {
	return op == OpCall || op == OpAsyncCall
}

// IsSuspendPoint returns true if execution may suspend around this opcode.
func (op Opcode) IsSuspendPoint() bool {
	return op == OpAsyncCall || op == OpPoll
}

// LookupOpcode returns the opcode with the given mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
