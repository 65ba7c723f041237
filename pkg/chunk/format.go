// Disassembly is a debugging aid only — spec.md §1 is explicit that its
// output format is not normative. This file exists so there is exactly
// one disassembly implementation in the repository: both the public
// Disassemble/DisassembleInstruction API and the VM's optional
// per-instruction trace (pkg/vm, vm.WithTrace) call the same code,
// following the "treat the disassembler as a debugging aid" framing
// and original_source/debug.rs's disassemble_chunk/disassemble_instruction
// split (one function walks a whole chunk, one formats a single
// instruction and reports how many bytes it consumed).
package chunk

import (
	"fmt"
	"io"

	"github.com/kristofer/loxbc/pkg/object"
)

// Disassemble writes a human-readable dump of every instruction in c to
// w, headed by a "== name ==" banner, matching original_source/debug.rs's
// disassemble_chunk.
func Disassemble(w io.Writer, c *Chunk, name string, heap *object.Heap) {
	fmt.Fprintf(w, "== %s ==\n", name)
	offset := 0
	for offset < c.Len() {
		offset = DisassembleInstruction(w, c, offset, heap)
	}
}

// DisassembleInstruction formats the single instruction starting at
// offset and returns the offset of the following instruction. heap may
// be nil if no constant in play needs an Object resolved (a nil heap
// dereferencing a String constant renders a placeholder instead of
// panicking, since this path must never crash a trace).
func DisassembleInstruction(w io.Writer, c *Chunk, offset int, heap *object.Heap) int {
	fmt.Fprintf(w, "%04d %s", offset, lineInfo(c, offset))

	b, ok := c.ReadByte(offset)
	if !ok {
		fmt.Fprintln(w, "(out of bounds)")
		return offset + 1
	}
	op := Op(b)

	switch op {
	case OpReturn, OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess,
		OpAdd, OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate, OpPrint:
		return simpleInstruction(w, op, offset)
	case OpConstant, OpGet, OpDefineGlobal:
		return constantInstruction(w, c, op, offset, heap)
	case OpConstantLong, OpGetLong, OpDefineGlobalLong:
		return constantLongInstruction(w, c, op, offset, heap)
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", b)
		return offset + 1
	}
}

// lineInfo renders the 4-digit source line, or a repeat marker
// ("   | ") when this instruction's line matches the previous one's —
// following original_source/debug.rs's line_info exactly.
func lineInfo(c *Chunk, offset int) string {
	curLine, ok := c.Line(offset)
	if !ok {
		return "   ? "
	}
	if offset > 0 {
		if prevLine, ok := c.Line(offset - 1); ok && prevLine == curLine {
			return "   | "
		}
	}
	return fmt.Sprintf("%4d ", curLine)
}

func simpleInstruction(w io.Writer, op Op, offset int) int {
	fmt.Fprintf(w, " %s\n", op)
	return offset + 1
}

func constantInstruction(w io.Writer, c *Chunk, op Op, offset int, heap *object.Heap) int {
	idxByte, ok := c.ReadByte(offset + 1)
	if !ok {
		fmt.Fprintf(w, " %s (truncated)\n", op)
		return offset + 1
	}
	index := int(idxByte)
	fmt.Fprintf(w, " %-22s %4d '%s'\n", op, index, displayConstant(c, index, heap))
	return offset + 2
}

func constantLongInstruction(w io.Writer, c *Chunk, op Op, offset int, heap *object.Heap) int {
	index16, ok := c.ReadShort(offset + 1)
	if !ok {
		fmt.Fprintf(w, " %s (truncated)\n", op)
		return offset + 1
	}
	index := int(index16)
	fmt.Fprintf(w, " %-22s %4d '%s'\n", op, index, displayConstant(c, index, heap))
	return offset + 3
}

// displayConstant renders constants[index] the same way pkg/vm renders
// Values for Print: nil/true/false/the float form, or, for a String
// Object, its bytes wrapped in double quotes (resolved through heap
// when available).
func displayConstant(c *Chunk, index int, heap *object.Heap) string {
	v := c.Constant(index)
	if v.IsObject() && heap != nil {
		return `"` + heap.String(object.Handle(v.AsObject())) + `"`
	}
	return v.String()
}
