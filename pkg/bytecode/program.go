package bytecode

import (
	"errors"
	"fmt"
)

// EntryPoint is the name of the function every program starts in.
const EntryPoint = "MAIN"

// LenFromStack as the POP_STR operand means the byte length is popped
// from the top of the stack before the string cells.
const LenFromStack int32 = -1

// FuncID indexes a function in its program's arena.
type FuncID int32

// NoFunc is the link target of a call whose name is not a program function.
// Such names may still resolve to natives registered with the machine.
const NoFunc FuncID = -1

var (
	ErrMissingEntryPoint = errors.New("missing entry point " + EntryPoint)
	ErrDuplicateFunction = errors.New("function already defined")
	ErrInvalidOpcode     = errors.New("invalid opcode")
	ErrJumpOutOfRange    = errors.New("jump target out of range")
	ErrMalformedAsync    = errors.New("malformed async function")
)

// Instruction is one decoded instruction. Instructions are immutable once
// their program is constructed; frames refer to them by function and pc.
type Instruction struct {
	Op     Opcode
	Arg    int32  // Immediate: value, slot, jump target, length or exit code
	Name   string // Call target for CALL and ASYNC_CALL
	Str    []byte // Payload for PUSH_STR
	Target FuncID // Linked call target, NoFunc if Name is not a program function
}

// String renders the instruction in listing form.
func (ins Instruction) String() string {
	switch ins.Op.Operand() {
	case OperandArg:
		return fmt.Sprintf("%s %d", ins.Op, ins.Arg)
	case OperandJump:
		return fmt.Sprintf("%s @%d", ins.Op, ins.Arg)
	case OperandName:
		return fmt.Sprintf("%s %s", ins.Op, ins.Name)
	case OperandStr:
		return fmt.Sprintf("%s %q", ins.Op, ins.Str)
	default:
		return ins.Op.String()
	}
}

// Function is a named instruction sequence with a declared arity.
// Arguments occupy local slots 0..Arity-1.
type Function struct {
	ID         FuncID
	Name       string
	Arity      int
	Locals     int      // Total local slots, at least Arity
	LocalNames []string // Optional slot names, for listings
	Async      bool
	Code       []Instruction
}

// Program is the arena of functions a machine executes.
type Program struct {
	funcs  []*Function
	byName map[string]FuncID
	entry  FuncID
	parts  *Partitioner
}

// NewProgram takes ownership of funcs, assigns ids, links call targets and
// validates the code. Async functions are partitioned eagerly so malformed
// ones are rejected at load time.
func NewProgram(funcs []*Function) (*Program, error) {
	p := &Program{
		funcs:  make([]*Function, 0, len(funcs)),
		byName: make(map[string]FuncID, len(funcs)),
		entry:  NoFunc,
		parts:  NewPartitioner(),
	}

	for _, fn := range funcs {
		if _, dup := p.byName[fn.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.Name)
		}
		fn.ID = FuncID(len(p.funcs))
		if fn.Locals < fn.Arity {
			fn.Locals = fn.Arity
		}
		p.byName[fn.Name] = fn.ID
		p.funcs = append(p.funcs, fn)
	}

	entry, ok := p.byName[EntryPoint]
	if !ok {
		return nil, ErrMissingEntryPoint
	}
	p.entry = entry

	for _, fn := range p.funcs {
		if err := p.link(fn); err != nil {
			return nil, err
		}
		if fn.Async {
			if _, err := p.parts.Partitions(fn); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Program) link(fn *Function) error {
	for pc := range fn.Code {
		ins := &fn.Code[pc]
		if !ins.Op.Valid() {
			return fmt.Errorf("%s@%d: %w 0x%02X", fn.Name, pc, ErrInvalidOpcode, byte(ins.Op))
		}
		if ins.Op.IsJump() && (ins.Arg < 0 || int(ins.Arg) >= len(fn.Code)) {
			return fmt.Errorf("%s@%d: %w: %d", fn.Name, pc, ErrJumpOutOfRange, ins.Arg)
		}
		ins.Target = NoFunc
		if ins.Op.IsCall() {
			if id, ok := p.byName[ins.Name]; ok {
				ins.Target = id
			}
		}
	}
	return nil
}

// Entry returns the MAIN function.
func (p *Program) Entry() *Function {
	return p.funcs[p.entry]
}

// Func returns the function with the given id, or nil.
func (p *Program) Func(id FuncID) *Function {
	if id < 0 || int(id) >= len(p.funcs) {
		return nil
	}
	return p.funcs[id]
}

// Lookup returns the function with the given name.
func (p *Program) Lookup(name string) (*Function, bool) {
	id, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.funcs[id], true
}

// Functions returns the functions in id order.
func (p *Program) Functions() []*Function {
	return p.funcs
}

// Partitions returns the cached partitions of an async function.
func (p *Program) Partitions(fn *Function) ([]Partition, error) {
	return p.parts.Partitions(fn)
}
