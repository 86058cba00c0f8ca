package bytecode

import (
	"errors"
	"fmt"
)

var ErrUndefinedLabel = errors.New("undefined label")

// Builder assembles functions into a Program. It is the in-memory
// instruction feed; textual formats are left to external tools.
type Builder struct {
	funcs []*FuncBuilder
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Func starts a synchronous function whose parameters occupy the first
// local slots in the given order.
func (b *Builder) Func(name string, params ...string) *FuncBuilder {
	return b.add(name, false, params)
}

// AsyncFunc starts an async function. Calls to it spawn a task.
func (b *Builder) AsyncFunc(name string, params ...string) *FuncBuilder {
	return b.add(name, true, params)
}

func (b *Builder) add(name string, async bool, params []string) *FuncBuilder {
	fb := &FuncBuilder{
		fn: &Function{
			Name:  name,
			Arity: len(params),
			Async: async,
		},
		slots:  make(map[string]int32),
		labels: make(map[string]int),
	}
	for _, p := range params {
		fb.Local(p)
	}
	b.funcs = append(b.funcs, fb)
	return fb
}

// Build resolves labels and constructs the program.
func (b *Builder) Build() (*Program, error) {
	funcs := make([]*Function, 0, len(b.funcs))
	for _, fb := range b.funcs {
		fn, err := fb.finish()
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	return NewProgram(funcs)
}

// MustBuild is like Build but panics on error. Intended for tests and
// programs embedded in Go source.
func (b *Builder) MustBuild() *Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

type jumpFixup struct {
	offset int
	label  string
}

// FuncBuilder emits the code of one function.
type FuncBuilder struct {
	fn     *Function
	slots  map[string]int32
	labels map[string]int
	fixups []jumpFixup
}

// Local returns the slot of a named local, allocating it on first use.
func (f *FuncBuilder) Local(name string) int32 {
	if slot, ok := f.slots[name]; ok {
		return slot
	}
	slot := int32(len(f.fn.LocalNames))
	f.slots[name] = slot
	f.fn.LocalNames = append(f.fn.LocalNames, name)
	f.fn.Locals = len(f.fn.LocalNames)
	return slot
}

// Emit appends an instruction without operand and returns its offset.
func (f *FuncBuilder) Emit(op Opcode) int {
	return f.emit(Instruction{Op: op})
}

// EmitArg appends an instruction with an immediate operand.
func (f *FuncBuilder) EmitArg(op Opcode, arg int32) int {
	return f.emit(Instruction{Op: op, Arg: arg})
}

// EmitCall appends a CALL or ASYNC_CALL to the named target.
func (f *FuncBuilder) EmitCall(op Opcode, name string) int {
	return f.emit(Instruction{Op: op, Name: name})
}

// EmitString appends PUSH_STR with the raw bytes of s.
func (f *FuncBuilder) EmitString(s string) int {
	return f.emit(Instruction{Op: OpPushStr, Str: []byte(s)})
}

// EmitStringWithLen pushes s followed by its byte length, the layout
// CMP_STR, PRINT_STR and POP_STR LenFromStack consume.
func (f *FuncBuilder) EmitStringWithLen(s string) int {
	off := f.EmitString(s)
	f.EmitArg(OpLoadVal, int32(len(s)))
	return off
}

// EmitLoad pushes the named local.
func (f *FuncBuilder) EmitLoad(name string) int {
	return f.EmitArg(OpLoadLocal, f.Local(name))
}

// EmitStore pops into the named local.
func (f *FuncBuilder) EmitStore(name string) int {
	return f.EmitArg(OpStoreLocal, f.Local(name))
}

// EmitJump appends a jump to label, which may be marked later.
func (f *FuncBuilder) EmitJump(op Opcode, label string) int {
	off := f.emit(Instruction{Op: op, Arg: -1})
	f.fixups = append(f.fixups, jumpFixup{offset: off, label: label})
	return off
}

// Mark binds label to the offset of the next emitted instruction.
func (f *FuncBuilder) Mark(label string) {
	f.labels[label] = len(f.fn.Code)
}

// CurrentOffset returns the offset of the next emitted instruction.
func (f *FuncBuilder) CurrentOffset() int {
	return len(f.fn.Code)
}

func (f *FuncBuilder) emit(ins Instruction) int {
	ins.Target = NoFunc
	f.fn.Code = append(f.fn.Code, ins)
	return len(f.fn.Code) - 1
}

func (f *FuncBuilder) finish() (*Function, error) {
	for _, fx := range f.fixups {
		target, ok := f.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("%s@%d: %w %q", f.fn.Name, fx.offset, ErrUndefinedLabel, fx.label)
		}
		f.fn.Code[fx.offset].Arg = int32(target)
	}
	f.fixups = nil
	return f.fn, nil
}
