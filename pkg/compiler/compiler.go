// Package compiler implements the single-pass Pratt compiler: a
// precedence-climbing parser driven directly off pkg/lexer's token
// stream that emits bytecode into a pkg/chunk.Chunk as it goes, with no
// intermediate AST.
//
// Compile owns the scanner, the Chunk under construction, a borrowed
// object heap (shared with the VM so compile-time string constants are
// interned jointly with runtime-allocated ones), an accumulated error
// list, and panic-mode state for error recovery — the architecture
// spec.md §9 calls "the central error architecture": record an error,
// suppress cascades until the next synchronization point, then resume
// accumulating.
package compiler

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kristofer/loxbc/pkg/chunk"
	"github.com/kristofer/loxbc/pkg/lexer"
	"github.com/kristofer/loxbc/pkg/object"
	"github.com/kristofer/loxbc/pkg/value"
)

// ParseError is one recorded parser error: the token it occurred at
// and a human-readable message.
type ParseError struct {
	Token   lexer.Token
	Message string
}

func (e ParseError) String() string {
	if e.Token.Kind == lexer.Eof {
		return fmt.Sprintf("[line %d] Error at end: %s", e.Token.Line, e.Message)
	}
	if e.Token.Kind == lexer.Error {
		return fmt.Sprintf("[line %d] Error: %s", e.Token.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] Error at '%s': %s", e.Token.Line, e.Token.Lexeme, e.Message)
}

// CompileError is returned when compilation accumulates one or more
// ParseErrors. It is never returned with a partial Chunk: callers that
// get a CompileError have no Chunk to run.
type CompileError struct {
	Errors []ParseError
}

func (e *CompileError) Error() string {
	msg := "compile error"
	if len(e.Errors) != 1 {
		msg = fmt.Sprintf("%d compile errors", len(e.Errors))
	}
	if len(e.Errors) > 0 {
		msg += ": " + e.Errors[0].String()
	}
	return msg
}

// Compiler holds all single-pass compilation state for one source
// unit. Create one with New, call Compile exactly once.
type Compiler struct {
	scanner *lexer.Scanner
	heap    *object.Heap
	chunk   *chunk.Chunk

	current  lexer.Token
	previous lexer.Token

	errors    []ParseError
	panicMode bool

	log zerolog.Logger
}

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithLogger attaches a structured logger. Compilers default to a
// no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compiler) { c.log = l }
}

// New creates a Compiler over source, sharing heap with whatever VM
// will later run the resulting Chunk.
func New(source string, heap *object.Heap, opts ...Option) *Compiler {
	c := &Compiler{
		scanner: lexer.New(source),
		heap:    heap,
		chunk:   chunk.New(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile consumes the entire token stream, parsing one declaration and
// then declaration after declaration until Eof (so an empty source is
// reported as "Expected expression."), and returns the finished Chunk
// (always ending in OpReturn) or a *CompileError listing every parse
// error collected along the way.
func (c *Compiler) Compile() (*chunk.Chunk, error) {
	c.log.Info().Msg("compile start")
	c.advance()
	for {
		c.declaration()
		if c.check(lexer.Eof) {
			break
		}
	}
	c.emitOp(chunk.OpReturn)

	if len(c.errors) > 0 {
		c.log.Warn().Int("errors", len(c.errors)).Msg("compile failed")
		return nil, &CompileError{Errors: c.errors}
	}
	c.log.Info().Int("bytes", c.chunk.Len()).Int("constants", c.chunk.ConstantCount()).Msg("compile ok")
	return c.chunk, nil
}

// --- token stream plumbing ---

// advance moves the one-token lookahead forward by one, skipping (and
// recording) any Error tokens the scanner itself produced so a lexical
// error is reported the same way a syntax error is.
func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.Scan()
		if c.current.Kind != lexer.Error {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind lexer.Kind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) matchToken(kind lexer.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

// consume advances past current if it has the expected kind, otherwise
// records message as a parse error at current.
func (c *Compiler) consume(kind lexer.Kind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error handling & panic-mode recovery ---

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

// errorAt records {token, message} unless panic mode is already
// suppressing further reports; it always enters panic mode on a fresh
// error so cascading errors from the same failure are dropped.
func (c *Compiler) errorAt(token lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.errors = append(c.errors, ParseError{Token: token, Message: message})
}

// synchronize advances tokens, discarding them, until it reaches a
// probable statement boundary: the previous token was ';', the current
// token starts a new declaration/statement, or Eof. It always clears
// panic mode — the next error recorded after this point starts a fresh,
// unsuppressed report.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != lexer.Eof {
		if c.previous.Kind == lexer.Semicolon {
			return
		}
		switch c.current.Kind {
		case lexer.Class, lexer.Fun, lexer.Var, lexer.For, lexer.If,
			lexer.While, lexer.Print, lexer.Return:
			return
		}
		c.advance()
	}
}

// --- declarations & statements ---

func (c *Compiler) declaration() {
	if c.matchToken(lexer.Var) {
		c.varDeclaration()
	} else {
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	nameConstant := c.parseVariableName("Expect variable name.")

	if c.matchToken(lexer.Equal) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.Semicolon, "Expect ';' after variable declaration.")

	c.emitConstant(chunk.OpDefineGlobal, chunk.OpDefineGlobalLong, nameConstant)
}

// parseVariableName consumes an identifier and interns it as a
// constant, returning its constant-pool index.
func (c *Compiler) parseVariableName(errMessage string) int {
	c.consume(lexer.Identifier, errMessage)
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) identifierConstant(name string) int {
	handle := c.heap.InternString(name)
	return c.addConstantOrError(value.Obj(value.ObjectHandle(handle)))
}

func (c *Compiler) statement() {
	if c.matchToken(lexer.Print) {
		c.printStatement()
		return
	}
	c.expressionStatement()
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

// --- emission helpers ---

func (c *Compiler) emitOp(op chunk.Op) {
	c.chunk.WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitByte(b byte) {
	c.chunk.WriteByte(b, c.previous.Line)
}

func (c *Compiler) emitConstant(short, long chunk.Op, index int) {
	c.chunk.EmitConstant(short, long, index, c.previous.Line)
}

// addConstantOrError appends v to the constant pool, turning a
// too-many-constants overflow into a normal compile error instead of a
// panic — see SPEC_FULL.md §9.
func (c *Compiler) addConstantOrError(v value.Value) int {
	index, ok := c.chunk.AddConstant(v)
	if !ok {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return index
}

// assertion wraps a programmer-logic error ("can't happen" under a
// correct single-pass compiler) with a stack trace. No code in this
// package calls it.
func assertion(format string, args ...interface{}) error {
	return errors.WithStack(errors.Errorf(format, args...))
}
