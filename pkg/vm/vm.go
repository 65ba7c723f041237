// Package vm implements the dispatch loop described in spec.md §4.6: a
// stack-based bytecode interpreter that reads one opcode at a time
// from a borrowed Chunk, manipulates a fixed-size value stack and a
// global symbol table, and writes Print output (and, optionally, a
// per-instruction trace) to a caller-supplied sink.
//
// Run owns nothing that outlives the call except the globals table,
// which persists across repeated Run calls on the same VM the same
// way original_source/vm.rs's VM is reusable across interpret_chunk
// calls — only the stack and instruction pointer reset each time.
package vm

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kristofer/loxbc/pkg/chunk"
	"github.com/kristofer/loxbc/pkg/object"
	"github.com/kristofer/loxbc/pkg/table"
	"github.com/kristofer/loxbc/pkg/value"
)

// StackMax is the fixed capacity of the value stack. Pushing the
// 257th value overflows; popping an empty stack underflows.
const StackMax = 256

// VM holds all state needed to run one Chunk: the value stack, the
// instruction pointer, the globals table (persistent across runs),
// the shared object heap, and output configuration.
type VM struct {
	heap    *object.Heap
	globals *table.Table[object.Handle, value.Value]

	chunk *chunk.Chunk
	ip    int

	stack [StackMax]value.Value
	top   int

	out   io.Writer
	trace bool
	log   zerolog.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLogger attaches a structured logger. VMs default to a no-op
// logger.
func WithLogger(l zerolog.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// WithOutput sets the byte sink Print writes to, and (when tracing is
// enabled) the sink per-instruction trace lines are written to
// before execution. Defaults to io.Discard.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithTrace enables per-instruction tracing: before each instruction
// executes, the VM writes the current stack contents and the
// disassembled instruction to the configured output sink.
func WithTrace(enabled bool) Option {
	return func(vm *VM) { vm.trace = enabled }
}

// New creates a VM sharing heap with whatever Compiler produced the
// chunks it will run. The globals table starts empty and persists
// for the VM's lifetime, across as many Run calls as the caller likes.
func New(heap *object.Heap, opts ...Option) *VM {
	vm := &VM{
		heap:    heap,
		globals: table.New[object.Handle, value.Value](),
		out:     io.Discard,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run executes c from its first byte. It returns the Return opcode's
// operand as the run's result (Nil if Return finds an empty stack),
// or a *RuntimeError halting execution immediately with no partial
// recovery, per spec.md §7.
func (vm *VM) Run(c *chunk.Chunk) (value.Value, error) {
	vm.chunk = c
	vm.ip = 0
	vm.top = 0
	vm.log.Info().Msg("vm run start")

	for {
		if vm.trace {
			if err := vm.writeTrace(); err != nil {
				return value.NilValue, err
			}
		}

		b, err := vm.readByte()
		if err != nil {
			return value.NilValue, err
		}
		op := chunk.Op(b)

		result, done, err := vm.dispatch(op)
		if err != nil {
			vm.log.Warn().Err(err).Msg("vm run failed")
			return value.NilValue, err
		}
		if done {
			vm.log.Info().Msg("vm run ok")
			return result, nil
		}

		if f, ok := vm.out.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return value.NilValue, runtimeError("Failed to write to output sink")
			}
		}
	}
}

// dispatch executes one decoded opcode. done reports whether it was
// Return (the run is over); result is only meaningful when done.
func (vm *VM) dispatch(op chunk.Op) (result value.Value, done bool, err error) {
	switch op {
	case chunk.OpReturn:
		v, ok := vm.pop()
		if !ok {
			return value.NilValue, true, nil
		}
		return v, true, nil

	case chunk.OpConstant:
		idx, err := vm.readByte()
		if err != nil {
			return value.NilValue, false, err
		}
		if !vm.push(vm.chunk.Constant(int(idx))) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpConstantLong:
		idx, err := vm.readShort()
		if err != nil {
			return value.NilValue, false, err
		}
		if !vm.push(vm.chunk.Constant(int(idx))) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpNil:
		if !vm.push(value.NilValue) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}
	case chunk.OpTrue:
		if !vm.push(value.Bool(true)) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}
	case chunk.OpFalse:
		if !vm.push(value.Bool(false)) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpPop:
		if _, ok := vm.pop(); !ok {
			return value.NilValue, false, runtimeError("Stack underflow")
		}

	case chunk.OpGet, chunk.OpGetLong:
		name, rerr := vm.readNameConstant(op)
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		v, found := vm.lookupGlobal(name)
		if !found {
			return value.NilValue, false, runtimeError("Undefined variable: %s", vm.heap.String(name))
		}
		if !vm.push(v) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpDefineGlobal, chunk.OpDefineGlobalLong:
		name, rerr := vm.readNameConstant(op)
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		v, ok := vm.pop()
		if !ok {
			return value.NilValue, false, runtimeError("Stack underflow")
		}
		vm.defineGlobal(name, v)

	case chunk.OpEqual:
		b, a, rerr := vm.popPair()
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		if !vm.push(value.Bool(value.Equal(a, b))) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpGreater:
		b, a, rerr := vm.popPair()
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		if !a.IsNumber() || !b.IsNumber() {
			return value.NilValue, false, runtimeError("Invalid type for comparison: %s %s", displayValue(vm.heap, a), displayValue(vm.heap, b))
		}
		if !vm.push(value.Bool(a.AsNumber() > b.AsNumber())) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpLess:
		b, a, rerr := vm.popPair()
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		if !a.IsNumber() || !b.IsNumber() {
			return value.NilValue, false, runtimeError("Invalid type for comparison: %s %s", displayValue(vm.heap, a), displayValue(vm.heap, b))
		}
		if !vm.push(value.Bool(a.AsNumber() < b.AsNumber())) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpAdd:
		b, a, rerr := vm.popPair()
		if rerr != nil {
			return value.NilValue, false, rerr
		}
		sum, addErr := vm.add(a, b)
		if addErr != nil {
			return value.NilValue, false, addErr
		}
		if !vm.push(sum) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpSubtract:
		if e := vm.binaryNumberOp("subtraction", func(a, b float32) float32 { return a - b }); e != nil {
			return value.NilValue, false, e
		}
	case chunk.OpMultiply:
		if e := vm.binaryNumberOp("multiplication", func(a, b float32) float32 { return a * b }); e != nil {
			return value.NilValue, false, e
		}
	case chunk.OpDivide:
		if e := vm.binaryNumberOp("division", func(a, b float32) float32 { return a / b }); e != nil {
			return value.NilValue, false, e
		}

	case chunk.OpNegate:
		a, ok := vm.pop()
		if !ok {
			return value.NilValue, false, runtimeError("Stack underflow")
		}
		if !a.IsNumber() {
			return value.NilValue, false, runtimeError("Invalid type for negation: %s", displayValue(vm.heap, a))
		}
		if !vm.push(value.Num(-a.AsNumber())) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpNot:
		a, ok := vm.pop()
		if !ok {
			return value.NilValue, false, runtimeError("Stack underflow")
		}
		if !vm.push(value.Bool(a.IsFalsy())) {
			return value.NilValue, false, runtimeError("Stack overflow")
		}

	case chunk.OpPrint:
		a, ok := vm.pop()
		if !ok {
			return value.NilValue, false, runtimeError("Stack underflow")
		}
		if _, werr := fmt.Fprintf(vm.out, "%s\n", displayValue(vm.heap, a)); werr != nil {
			return value.NilValue, false, runtimeError("Failed to write to output sink")
		}

	default:
		return value.NilValue, false, runtimeError("Unknown opcode: %d", byte(op))
	}
	return value.NilValue, false, nil
}

// binaryNumberOp implements Subtract/Multiply/Divide: pop b, pop a,
// require both Number, push apply(a, b).
func (vm *VM) binaryNumberOp(name string, apply func(a, b float32) float32) error {
	b, a, err := vm.popPair()
	if err != nil {
		return err
	}
	if !a.IsNumber() || !b.IsNumber() {
		return runtimeError("Invalid type for %s: %s %s", name, displayValue(vm.heap, a), displayValue(vm.heap, b))
	}
	if !vm.push(value.Num(apply(a.AsNumber(), b.AsNumber()))) {
		return runtimeError("Stack overflow")
	}
	return nil
}

// add implements the Add opcode's two valid cases (Number+Number,
// String+String) and its error case, per spec.md's exact operand
// ordering: a (the first-pushed operand) appears first in the message.
func (vm *VM) add(a, b value.Value) (value.Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return value.Num(a.AsNumber() + b.AsNumber()), nil
	}
	if a.IsObject() && b.IsObject() {
		ah, bh := object.Handle(a.AsObject()), object.Handle(b.AsObject())
		concatenated := vm.heap.String(ah) + vm.heap.String(bh)
		return value.Obj(value.ObjectHandle(vm.heap.InternString(concatenated))), nil
	}
	return value.NilValue, runtimeError("Invalid type for addition: %s %s", displayValue(vm.heap, a), displayValue(vm.heap, b))
}

// readNameConstant reads the short or long constant-index operand for
// Get/DefineGlobal and resolves it to the String Object handle it must
// name; it is a programmer-logic error for the compiler to have
// emitted anything else here.
func (vm *VM) readNameConstant(op chunk.Op) (object.Handle, error) {
	var idx int
	switch op {
	case chunk.OpGet, chunk.OpDefineGlobal:
		b, err := vm.readByte()
		if err != nil {
			return 0, err
		}
		idx = int(b)
	default:
		s, err := vm.readShort()
		if err != nil {
			return 0, err
		}
		idx = int(s)
	}
	v := vm.chunk.Constant(idx)
	if !v.IsObject() {
		return 0, errors.Wrap(runtimeError("name constant is not a String object"), "compiler invariant violated")
	}
	return object.Handle(v.AsObject()), nil
}

func (vm *VM) lookupGlobal(name object.Handle) (value.Value, bool) {
	return vm.globals.Get(name, vm.heap.Hash(name))
}

func (vm *VM) defineGlobal(name object.Handle, v value.Value) {
	vm.globals.Set(name, vm.heap.Hash(name), v)
}

// --- stack primitives ---

func (vm *VM) push(v value.Value) (ok bool) {
	if vm.top >= StackMax {
		return false
	}
	vm.stack[vm.top] = v
	vm.top++
	return true
}

func (vm *VM) pop() (v value.Value, ok bool) {
	if vm.top == 0 {
		return value.NilValue, false
	}
	vm.top--
	return vm.stack[vm.top], true
}

// popPair pops b then a (b was pushed last), matching every binary
// opcode's "pop b, pop a" order in spec.md §4.6.
func (vm *VM) popPair() (b, a value.Value, err error) {
	b, ok := vm.pop()
	if !ok {
		return value.NilValue, value.NilValue, runtimeError("Stack underflow")
	}
	a, ok = vm.pop()
	if !ok {
		return value.NilValue, value.NilValue, runtimeError("Stack underflow")
	}
	return b, a, nil
}

// --- chunk reading ---

func (vm *VM) readByte() (byte, error) {
	b, ok := vm.chunk.ReadByte(vm.ip)
	if !ok {
		return 0, runtimeError("Read byte out of bounds")
	}
	vm.ip++
	return b, nil
}

func (vm *VM) readShort() (uint16, error) {
	s, ok := vm.chunk.ReadShort(vm.ip)
	if !ok {
		return 0, runtimeError("Read short out of bounds")
	}
	vm.ip += 2
	return s, nil
}

// --- tracing & display ---

func (vm *VM) writeTrace() error {
	fmt.Fprint(vm.out, "          ")
	for i := 0; i < vm.top; i++ {
		fmt.Fprintf(vm.out, "[%s]", displayValue(vm.heap, vm.stack[i]))
	}
	fmt.Fprintln(vm.out)
	chunk.DisassembleInstruction(vm.out, vm.chunk, vm.ip, vm.heap)
	return nil
}

// displayValue renders a Value's display form: nil, true/false, a
// float-formatted Number, or a String Object's bytes surrounded by
// double quotes.
func displayValue(heap *object.Heap, v value.Value) string {
	if v.IsObject() {
		return `"` + heap.String(object.Handle(v.AsObject())) + `"`
	}
	return v.String()
}
