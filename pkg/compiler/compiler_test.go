package compiler

import (
	"testing"

	"github.com/kristofer/loxbc/pkg/chunk"
	"github.com/kristofer/loxbc/pkg/lexer"
	"github.com/kristofer/loxbc/pkg/object"
	"github.com/kristofer/loxbc/pkg/value"
)

func compileOK(t *testing.T, source string) *chunk.Chunk {
	t.Helper()
	heap := object.NewHeap()
	c, err := New(source, heap).Compile()
	if err != nil {
		t.Fatalf("unexpected compile error for %q: %v", source, err)
	}
	return c
}

func readOpcodes(c *chunk.Chunk) []chunk.Op {
	var ops []chunk.Op
	offset := 0
	for offset < c.Len() {
		b, _ := c.ReadByte(offset)
		op := chunk.Op(b)
		ops = append(ops, op)
		switch op {
		case chunk.OpConstant, chunk.OpGet, chunk.OpDefineGlobal:
			offset += 2
		case chunk.OpConstantLong, chunk.OpGetLong, chunk.OpDefineGlobalLong:
			offset += 3
		default:
			offset++
		}
	}
	return ops
}

func expectOps(t *testing.T, got, want []chunk.Op) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEmptySourceIsCompileError(t *testing.T) {
	heap := object.NewHeap()
	_, err := New("", heap).Compile()
	if err == nil {
		t.Fatalf("expected an error for empty source")
	}
}

func TestNumberLiteralStatement(t *testing.T) {
	c := compileOK(t, "123;")
	expectOps(t, readOpcodes(c), []chunk.Op{chunk.OpConstant, chunk.OpPop, chunk.OpReturn})
	if got := c.Constant(0); !value.Equal(got, value.Num(123)) {
		t.Fatalf("expected constant 123, got %v", got)
	}
}

func TestPrintUnaryNegate(t *testing.T) {
	c := compileOK(t, "print -123;")
	expectOps(t, readOpcodes(c), []chunk.Op{chunk.OpConstant, chunk.OpNegate, chunk.OpPrint, chunk.OpReturn})
}

func TestPrintNotTrue(t *testing.T) {
	c := compileOK(t, "print !true;")
	expectOps(t, readOpcodes(c), []chunk.Op{chunk.OpTrue, chunk.OpNot, chunk.OpPrint, chunk.OpReturn})
}

func TestVarDeclarationAndRead(t *testing.T) {
	c := compileOK(t, "var x = 123; print x;")
	expectOps(t, readOpcodes(c), []chunk.Op{
		chunk.OpConstant, chunk.OpDefineGlobal,
		chunk.OpGet, chunk.OpPrint,
		chunk.OpReturn,
	})
}

func TestVarDeclarationWithoutInitializerIsNil(t *testing.T) {
	c := compileOK(t, "var x; print x;")
	expectOps(t, readOpcodes(c), []chunk.Op{
		chunk.OpNil, chunk.OpDefineGlobal, chunk.OpGet, chunk.OpPrint, chunk.OpReturn,
	})
}

func TestStringConcatenation(t *testing.T) {
	c := compileOK(t, `print "hello" + "world";`)
	expectOps(t, readOpcodes(c), []chunk.Op{
		chunk.OpConstant, chunk.OpConstant, chunk.OpAdd, chunk.OpPrint, chunk.OpReturn,
	})
}

func TestComparisonCompoundsDesugar(t *testing.T) {
	cases := map[string][]chunk.Op{
		"1 != 2;": {chunk.OpConstant, chunk.OpConstant, chunk.OpEqual, chunk.OpNot, chunk.OpPop, chunk.OpReturn},
		"1 >= 2;": {chunk.OpConstant, chunk.OpConstant, chunk.OpLess, chunk.OpNot, chunk.OpPop, chunk.OpReturn},
		"1 <= 2;": {chunk.OpConstant, chunk.OpConstant, chunk.OpGreater, chunk.OpNot, chunk.OpPop, chunk.OpReturn},
	}
	for src, want := range cases {
		expectOps(t, readOpcodes(compileOK(t, src)), want)
	}
}

func TestGroupingAndPrecedence(t *testing.T) {
	c := compileOK(t, "(1 + 2) * 3;")
	expectOps(t, readOpcodes(c), []chunk.Op{
		chunk.OpConstant, chunk.OpConstant, chunk.OpAdd,
		chunk.OpConstant, chunk.OpMultiply,
		chunk.OpPop, chunk.OpReturn,
	})
}

func TestUnaryBindsTighterThanFactor(t *testing.T) {
	// -2 * 3 must negate 2 alone, not the whole product.
	c := compileOK(t, "-2 * 3;")
	expectOps(t, readOpcodes(c), []chunk.Op{
		chunk.OpConstant, chunk.OpNegate, chunk.OpConstant, chunk.OpMultiply, chunk.OpPop, chunk.OpReturn,
	})
}

func TestMultipleErrorsAccumulateAcrossSynchronization(t *testing.T) {
	heap := object.NewHeap()
	// Two independent malformed declarations; panic mode should recover
	// at the ';' so both are reported instead of only the first.
	_, err := New("var ; var ;", heap).Compile()
	if err == nil {
		t.Fatalf("expected compile error")
	}
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if len(ce.Errors) < 2 {
		t.Fatalf("expected at least 2 parse errors after synchronization, got %d: %v", len(ce.Errors), ce.Errors)
	}
}

func TestMissingSemicolonIsReportedAtCurrentToken(t *testing.T) {
	heap := object.NewHeap()
	_, err := New("123", heap).Compile()
	if err == nil {
		t.Fatalf("expected compile error for missing ';'")
	}
	ce := err.(*CompileError)
	if ce.Errors[0].Token.Kind != lexer.Eof {
		t.Fatalf("expected the error token to be Eof, got %v", ce.Errors[0].Token.Kind)
	}
}

func TestConstantPoolGrowsPast255WithoutError(t *testing.T) {
	heap := object.NewHeap()
	source := ""
	for i := 0; i < 260; i++ {
		source += "var v" + itoa(i) + ";\n"
	}
	c, err := New(source, heap).Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ConstantCount() < 260 {
		t.Fatalf("expected at least 260 constants, got %d", c.ConstantCount())
	}
}

func TestReturnAlwaysAppended(t *testing.T) {
	c := compileOK(t, "123;")
	ops := readOpcodes(c)
	if ops[len(ops)-1] != chunk.OpReturn {
		t.Fatalf("expected chunk to end with OpReturn, got %v", ops)
	}
}

// itoa avoids importing strconv just for test fixture names.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
