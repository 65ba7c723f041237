package compiler

import (
	"strconv"

	"github.com/kristofer/loxbc/pkg/chunk"
	"github.com/kristofer/loxbc/pkg/lexer"
	"github.com/kristofer/loxbc/pkg/value"
)

// Precedence levels, low to high, convertible to int so
// parsePrecedence can compare with <=.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type (
	prefixFn func(c *Compiler)
	infixFn  func(c *Compiler)
)

type parseRule struct {
	prefix prefixFn
	infix  infixFn
	prec   Precedence
}

// rules is the Pratt table: token kind -> (prefix handler, infix
// handler, infix precedence). Entries not listed have no prefix, no
// infix, and PrecNone — looking one up via ruleFor falls back to the
// zero parseRule automatically.
var rules = map[lexer.Kind]parseRule{
	lexer.LeftParen:    {prefix: (*Compiler).grouping},
	lexer.Minus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, prec: PrecTerm},
	lexer.Plus:         {infix: (*Compiler).binary, prec: PrecTerm},
	lexer.Slash:        {infix: (*Compiler).binary, prec: PrecFactor},
	lexer.Star:         {infix: (*Compiler).binary, prec: PrecFactor},
	lexer.Bang:         {prefix: (*Compiler).unary},
	lexer.BangEqual:    {infix: (*Compiler).binary, prec: PrecEquality},
	lexer.EqualEqual:   {infix: (*Compiler).binary, prec: PrecEquality},
	lexer.Greater:      {infix: (*Compiler).binary, prec: PrecComparison},
	lexer.GreaterEqual: {infix: (*Compiler).binary, prec: PrecComparison},
	lexer.Less:         {infix: (*Compiler).binary, prec: PrecComparison},
	lexer.LessEqual:    {infix: (*Compiler).binary, prec: PrecComparison},
	lexer.Identifier:   {prefix: (*Compiler).variable},
	lexer.String:       {prefix: (*Compiler).stringLiteral},
	lexer.Number:       {prefix: (*Compiler).numberLiteral},
	lexer.False:        {prefix: (*Compiler).literal},
	lexer.Nil:          {prefix: (*Compiler).literal},
	lexer.True:         {prefix: (*Compiler).literal},
}

func ruleFor(kind lexer.Kind) parseRule {
	return rules[kind] // zero value (no prefix/infix, PrecNone) when absent
}

// expression parses a full expression at the lowest real precedence
// above "no expression at all".
func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence is the core Pratt driver described in spec.md §4.3:
// advance once, run the previous token's prefix rule (or record
// "Expected expression." if it has none), then keep advancing and
// running infix rules as long as the current token binds at least as
// tightly as minPrec.
func (c *Compiler) parsePrecedence(minPrec Precedence) {
	c.advance()
	prefix := ruleFor(c.previous.Kind).prefix
	if prefix == nil {
		c.error("Expected expression.")
		return
	}
	prefix(c)

	for minPrec <= ruleFor(c.current.Kind).prec {
		c.advance()
		infix := ruleFor(c.previous.Kind).infix
		infix(c)
	}
}

func (c *Compiler) grouping() {
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary() {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case lexer.Minus:
		c.emitOp(chunk.OpNegate)
	case lexer.Bang:
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) binary() {
	opKind := c.previous.Kind
	rule := ruleFor(opKind)
	c.parsePrecedence(rule.prec + 1) // left-associative: parse at one level higher
	switch opKind {
	case lexer.Plus:
		c.emitOp(chunk.OpAdd)
	case lexer.Minus:
		c.emitOp(chunk.OpSubtract)
	case lexer.Star:
		c.emitOp(chunk.OpMultiply)
	case lexer.Slash:
		c.emitOp(chunk.OpDivide)
	case lexer.EqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.BangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case lexer.Greater:
		c.emitOp(chunk.OpGreater)
	case lexer.Less:
		c.emitOp(chunk.OpLess)
	case lexer.GreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case lexer.LessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) literal() {
	switch c.previous.Kind {
	case lexer.False:
		c.emitOp(chunk.OpFalse)
	case lexer.True:
		c.emitOp(chunk.OpTrue)
	case lexer.Nil:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) numberLiteral() {
	f, err := strconv.ParseFloat(c.previous.Lexeme, 32)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	index := c.addConstantOrError(value.Num(float32(f)))
	c.emitConstant(chunk.OpConstant, chunk.OpConstantLong, index)
}

func (c *Compiler) stringLiteral() {
	lexeme := c.previous.Lexeme
	// Strip the surrounding quotes.
	raw := lexeme[1 : len(lexeme)-1]
	handle := c.heap.InternString(raw)
	index := c.addConstantOrError(value.Obj(value.ObjectHandle(handle)))
	c.emitConstant(chunk.OpConstant, chunk.OpConstantLong, index)
}

func (c *Compiler) variable() {
	index := c.identifierConstant(c.previous.Lexeme)
	c.emitConstant(chunk.OpGet, chunk.OpGetLong, index)
}
