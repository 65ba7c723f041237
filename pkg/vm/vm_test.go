package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/loxbc/pkg/chunk"
	"github.com/kristofer/loxbc/pkg/compiler"
	"github.com/kristofer/loxbc/pkg/object"
	"github.com/kristofer/loxbc/pkg/value"
)

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	heap := object.NewHeap()
	c, cerr := compiler.New(source, heap).Compile()
	if cerr != nil {
		t.Fatalf("unexpected compile error: %v", cerr)
	}
	var out bytes.Buffer
	result, rerr := New(heap, WithOutput(&out)).Run(c)
	_ = result
	return out.String(), rerr
}

func TestPrintNumberLiteral(t *testing.T) {
	out, err := run(t, "print 1;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "1\n" {
		t.Fatalf("expected %q, got %q", "1\n", out)
	}
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := run(t, "print 1 + 2 * 3;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n" {
		t.Fatalf("expected %q, got %q", "7\n", out)
	}
}

func TestStringConcatenationAtRuntime(t *testing.T) {
	out, err := run(t, `print "foo" + "bar";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "\"foobar\"\n" {
		t.Fatalf("expected quoted concatenation, got %q", out)
	}
}

func TestGlobalVariableRoundTrip(t *testing.T) {
	out, err := run(t, "var x = 10; var y = 20; print x + y;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "30\n" {
		t.Fatalf("expected %q, got %q", "30\n", out)
	}
}

func TestGlobalRedefinitionOverwrites(t *testing.T) {
	out, err := run(t, "var x = 1; var x = 2; print x;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "2\n" {
		t.Fatalf("expected %q, got %q", "2\n", out)
	}
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, "print x;")
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	if !strings.Contains(err.Error(), "Undefined variable: x") {
		t.Fatalf("expected 'Undefined variable: x', got %v", err)
	}
}

func TestAddTypeMismatchReportsOperandsInPushOrder(t *testing.T) {
	_, err := run(t, "print 1 + nil;")
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	if !strings.HasPrefix(err.Error(), "Invalid type for addition: 1 nil") {
		t.Fatalf("expected operand order 1 then nil, got %v", err)
	}
}

func TestComparisonAndEquality(t *testing.T) {
	cases := map[string]string{
		"print 1 < 2;":      "true\n",
		"print 1 > 2;":      "false\n",
		"print 1 == 1;":     "true\n",
		"print 1 != 2;":     "true\n",
		"print 2 >= 2;":     "true\n",
		"print 2 <= 1;":     "false\n",
		`print "a" == "a";`: "true\n",
	}
	for src, want := range cases {
		out, err := run(t, src)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", src, err)
		}
		if out != want {
			t.Fatalf("%s: expected %q, got %q", src, want, out)
		}
	}
}

func TestNegateAndNot(t *testing.T) {
	out, err := run(t, "print -5; print !false; print !nil;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "-5\ntrue\ntrue\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDivisionByZeroProducesInfinity(t *testing.T) {
	// The language has no dedicated division-by-zero error: float32
	// semantics apply, same as the reference VM's operator overloads.
	out, err := run(t, "print 1 / 0;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "+Inf\n" {
		t.Fatalf("expected +Inf, got %q", out)
	}
}

func TestReturnOnEmptyStackYieldsNil(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	c.WriteOp(chunk.OpReturn, 1)

	vm := New(heap)
	result, err := vm.Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.Equal(result, value.NilValue) {
		t.Fatalf("expected Nil result, got %v", result)
	}
}

func TestReturnPopsTopOfStack(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	idx, _ := c.AddConstant(value.Num(1.2))
	c.EmitConstant(chunk.OpConstant, chunk.OpConstantLong, idx, 1)
	c.WriteOp(chunk.OpReturn, 2)

	vm := New(heap)
	result, err := vm.Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.Equal(result, value.Num(1.2)) {
		t.Fatalf("expected 1.2, got %v", result)
	}
}

func TestConstantWithoutReturnIsReadOutOfBounds(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	idx, _ := c.AddConstant(value.Num(1.2))
	c.EmitConstant(chunk.OpConstant, chunk.OpConstantLong, idx, 1)
	// No trailing Return: falling off the end is Read-out-of-bounds.

	vm := New(heap)
	_, err := vm.Run(c)
	if err == nil || err.Error() != "Read byte out of bounds" {
		t.Fatalf("expected 'Read byte out of bounds', got %v", err)
	}
}

func TestPopOnEmptyStackIsStackUnderflow(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	c.WriteOp(chunk.OpPop, 1)

	vm := New(heap)
	_, err := vm.Run(c)
	if err == nil || err.Error() != "Stack underflow" {
		t.Fatalf("expected 'Stack underflow', got %v", err)
	}
}

func Test257ConstantsOverflowTheStack(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	for i := 0; i < 257; i++ {
		idx, _ := c.AddConstant(value.Num(float32(i)))
		c.EmitConstant(chunk.OpConstant, chunk.OpConstantLong, idx, i)
	}
	c.WriteOp(chunk.OpReturn, 257)

	vm := New(heap)
	_, err := vm.Run(c)
	if err == nil || err.Error() != "Stack overflow" {
		t.Fatalf("expected 'Stack overflow', got %v", err)
	}
}

func TestUnknownOpcodeIsRuntimeError(t *testing.T) {
	heap := object.NewHeap()
	c := chunk.New()
	c.WriteByte(255, 1)

	vm := New(heap)
	_, err := vm.Run(c)
	if err == nil || !strings.Contains(err.Error(), "Unknown opcode: 255") {
		t.Fatalf("expected unknown opcode error, got %v", err)
	}
}

func TestGlobalsPersistAcrossRunCalls(t *testing.T) {
	heap := object.NewHeap()
	machine := New(heap)

	c1, _ := compiler.New("var counter = 1;", heap).Compile()
	if _, err := machine.Run(c1); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}

	var out bytes.Buffer
	machine2 := New(heap, WithOutput(&out))
	machine2.globals = machine.globals
	c2, _ := compiler.New("print counter;", heap).Compile()
	if _, err := machine2.Run(c2); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if out.String() != "1\n" {
		t.Fatalf("expected globals to persist, got %q", out.String())
	}
}

func TestTraceWritesStackAndDisassembly(t *testing.T) {
	heap := object.NewHeap()
	c, _ := compiler.New("print 1;", heap).Compile()

	var out bytes.Buffer
	machine := New(heap, WithOutput(&out), WithTrace(true))
	if _, err := machine.Run(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "OP_CONSTANT") {
		t.Fatalf("expected trace to mention OP_CONSTANT, got %q", out.String())
	}
}
