package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; Cell Bytecode v%d\n", ImageVersion))
	sb.WriteString(fmt.Sprintf("; Functions: %d, entry: %s\n", len(p.funcs), EntryPoint))
	for _, fn := range p.funcs {
		sb.WriteString("\n")
		var parts []Partition
		if fn.Async {
			parts, _ = p.Partitions(fn)
		}
		sb.WriteString(fn.DisassembleWithPartitions(parts))
	}
	return sb.String()
}

// Disassemble returns a listing of the function's code.
func (fn *Function) Disassemble() string {
	return fn.DisassembleWithPartitions(nil)
}

// DisassembleWithPartitions returns a listing with a marker at the start
// of every partition.
func (fn *Function) DisassembleWithPartitions(parts []Partition) string {
	var sb strings.Builder

	// Header
	kind := "func"
	if fn.Async {
		kind = "async func"
	}
	sb.WriteString(fmt.Sprintf("; === %s %s/%d ===\n", kind, fn.Name, fn.Arity))

	// Locals
	if fn.Locals > 0 {
		sb.WriteString(fmt.Sprintf("; Locals (%d): ", fn.Locals))
		for i := 0; i < fn.Locals; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i < len(fn.LocalNames) {
				sb.WriteString(fn.LocalNames[i])
			} else {
				sb.WriteString(fmt.Sprintf("_%d", i))
			}
		}
		sb.WriteString("\n")
	}

	next := 0
	for pc, ins := range fn.Code {
		if next < len(parts) && parts[next].Start == pc {
			p := parts[next]
			sb.WriteString(fmt.Sprintf("; -- partition %d [%d, %d) %s\n", p.Index, p.Start, p.End, p.Kind))
			next++
		}
		sb.WriteString(fmt.Sprintf("%04d  %s", pc, ins))
		if ins.Op.IsCall() && ins.Target == NoFunc {
			sb.WriteString("  ; native")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
