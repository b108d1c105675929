// Package compiler compiles Lox source straight into bytecode in a
// single pass: there is no intermediate AST. Expressions are compiled by
// a Pratt parser (a table of prefix/infix handlers keyed by precedence);
// statements and declarations are compiled by recursive-descent
// functions that emit directly into the current function's chunk.
package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"loxgo/lexer"
	"loxgo/token"
	"loxgo/vm"
)

// Precedence orders binding strength from loosest to tightest, used to
// drive parsePrecedence's climbing loop.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // ()
	PrecPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.TokenType]parseRule

func init() {
	rules = map[token.TokenType]parseRule{
		token.LPAREN:    {prefix: grouping, infix: call, precedence: PrecCall},
		token.MINUS:     {prefix: unary, infix: binary, precedence: PrecTerm},
		token.PLUS:      {infix: binary, precedence: PrecTerm},
		token.SLASH:     {infix: binary, precedence: PrecFactor},
		token.ASTERISK:  {infix: binary, precedence: PrecFactor},
		token.BANG:      {prefix: unary},
		token.NOT_EQ:    {infix: binary, precedence: PrecEquality},
		token.EQ:        {infix: binary, precedence: PrecEquality},
		token.GT:        {infix: binary, precedence: PrecComparison},
		token.GE:        {infix: binary, precedence: PrecComparison},
		token.LT:        {infix: binary, precedence: PrecComparison},
		token.LE:        {infix: binary, precedence: PrecComparison},
		token.IDENT:     {prefix: variable},
		token.STRING:    {prefix: stringLiteral},
		token.NUMBER:    {prefix: number},
		token.AND:       {infix: and_, precedence: PrecAnd},
		token.OR:        {infix: or_, precedence: PrecOr},
		token.FALSE:     {prefix: literal},
		token.TRUE:      {prefix: literal},
		token.NIL:       {prefix: literal},
	}
}

func getRule(t token.TokenType) parseRule {
	return rules[t]
}

// FuncType distinguishes the implicit top-level script from a real
// `fun` declaration, mainly to forbid `return` at the top level.
type FuncType int

const (
	funcTypeScript FuncType = iota
	funcTypeFunction
)

// Local is a block-scoped local variable tracked at compile time. Depth
// of -1 means "declared but not yet defined" — it is on the locals
// stack (so duplicate-declaration checks and shadowing resolve
// correctly) but cannot yet be read, which is what forbids a variable's
// initializer from referring to itself.
type Local struct {
	Name  string
	Depth int
}

const uninitialized = -1

// compilerState is one function's worth of compile-time bookkeeping:
// its output function/chunk, its locals stack, and its current scope
// depth. Compiling a nested `fun` pushes a new compilerState and pops
// back to the enclosing one when the function body ends.
type compilerState struct {
	enclosing  *compilerState
	function   *vm.Function
	functionID int
	funcType   FuncType
	locals     []Local
	scopeDepth int
}

// Parser drives the lexer one token at a time and compiles directly
// into bytecode as it goes (no AST). It is the single-pass analogue of
// a recursive-descent parser that would otherwise build tree nodes.
type Parser struct {
	lex       *lexer.Lexer
	current   token.Token
	previous  token.Token
	compiler  *compilerState
	functions *vm.FunctionTable
	errors    *multierror.Error
	panicMode bool
}

// Compile compiles source into a function table whose entry 0 is the
// implicit top-level script. A non-nil error aggregates every compile
// error found (panic-mode recovery keeps parsing after each one so a
// single run reports as many problems as possible).
func Compile(source string) (*vm.FunctionTable, error) {
	functions := vm.NewFunctionTable()

	script := &vm.Function{Name: "", Arity: 0, Chunk: vm.NewChunk()}
	scriptID := functions.Add(script)

	p := &Parser{
		lex:       lexer.New(source),
		functions: functions,
		compiler: &compilerState{
			function:   script,
			functionID: scriptID,
			funcType:   funcTypeScript,
		},
	}
	// Slot 0 holds the implicit <script> function value the VM pushes
	// before running (see vm.Run), mirroring the reservation function()
	// makes for a real callee.
	p.compiler.locals = append(p.compiler.locals, Local{Name: "", Depth: 0})

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	p.endCompiler()

	if err := p.errors.ErrorOrNil(); err != nil {
		return nil, err
	}
	return functions, nil
}

// ----------------------------------------------------------------------
// Token stream
// ----------------------------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.NextToken()
		if p.current.Type != token.ILLEGAL {
			break
		}
		p.errorAtCurrent(p.current.Literal)
	}
}

func (p *Parser) check(t token.TokenType) bool {
	return p.current.Type == t
}

func (p *Parser) match(t token.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t token.TokenType, message string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// ----------------------------------------------------------------------
// Error reporting and panic-mode synchronization
// ----------------------------------------------------------------------

func (p *Parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *Parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *Parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errors = multierror.Append(p.errors, fmt.Errorf("error at line %d, at '%s': %s", tok.Line, tok.Literal, message))
}

// synchronize skips tokens until it reaches a plausible statement
// boundary, so one syntax error doesn't cascade into a wall of bogus
// follow-on errors.
func (p *Parser) synchronize() {
	p.panicMode = false

	for p.current.Type != token.EOF {
		if p.previous.Type == token.SEMICOLON {
			return
		}
		switch p.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}

// ----------------------------------------------------------------------
// Bytecode emission helpers
// ----------------------------------------------------------------------

func (p *Parser) currentChunk() *vm.Chunk {
	return p.compiler.function.Chunk
}

func (p *Parser) emitByte(b byte) {
	p.currentChunk().WriteByte(b, p.previous.Line)
}

func (p *Parser) emitOp(op vm.Opcode) {
	p.currentChunk().WriteOpcode(op, p.previous.Line)
}

func (p *Parser) emitOpByte(op vm.Opcode, operand byte) {
	p.emitOp(op)
	p.emitByte(operand)
}

func (p *Parser) emitOpShort(op vm.Opcode, operand uint16) {
	p.emitOp(op)
	p.currentChunk().WriteShort(operand, p.previous.Line)
}

func (p *Parser) emitReturn() {
	p.emitOp(vm.OP_NIL)
	p.emitOp(vm.OP_RETURN)
}

func (p *Parser) emitConstant(value vm.Value) {
	idx, err := p.currentChunk().AddConstant(value)
	if err != nil {
		p.error(err.Error())
		return
	}
	p.emitOpShort(vm.OP_CONSTANT, uint16(idx))
}

func (p *Parser) emitJump(op vm.Opcode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return p.currentChunk().Count() - 2
}

func (p *Parser) patchJump(offset int) {
	if err := p.currentChunk().PatchJump(offset); err != nil {
		p.error(err.Error())
	}
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(vm.OP_LOOP)
	offset := p.currentChunk().Count() - loopStart + 2
	if offset > vm.MaxJump {
		p.error("Loop body too large.")
	}
	p.currentChunk().WriteShort(uint16(offset), p.previous.Line)
}

// endCompiler finishes the current function, installs an implicit
// `return nil` in case control falls off the end, and pops back to the
// enclosing compiler state (nil at the top level).
func (p *Parser) endCompiler() *vm.Function {
	p.emitReturn()
	fn := p.compiler.function
	if vm.Tracer.IsLevelEnabled(5) { // logrus.DebugLevel
		name := fn.Name
		if name == "" {
			name = "<script>"
		}
		fn.Chunk.Disassemble(name)
	}
	p.compiler = p.compiler.enclosing
	return fn
}

// ----------------------------------------------------------------------
// Scopes and locals
// ----------------------------------------------------------------------

func (p *Parser) beginScope() {
	p.compiler.scopeDepth++
}

// endScope pops every local declared in the scope just exited, in LIFO
// order, each with its own OP_POP.
func (p *Parser) endScope() {
	p.compiler.scopeDepth--
	locals := p.compiler.locals
	for len(locals) > 0 && locals[len(locals)-1].Depth > p.compiler.scopeDepth {
		p.emitOp(vm.OP_POP)
		locals = locals[:len(locals)-1]
	}
	p.compiler.locals = locals
}

func (p *Parser) identifierConstant(name token.Token) uint16 {
	idx, err := p.currentChunk().AddConstant(vm.NewString(name.Literal))
	if err != nil {
		p.error(err.Error())
		return 0
	}
	return uint16(idx)
}

func (p *Parser) addLocal(name token.Token) {
	if len(p.compiler.locals) >= 256 {
		p.error("Too many local variables in function.")
		return
	}
	p.compiler.locals = append(p.compiler.locals, Local{Name: name.Literal, Depth: uninitialized})
}

// declareVariable registers the just-consumed identifier as a local
// (global variables need no compile-time declaration; they resolve by
// name at runtime). Re-declaring a name already declared in the same
// block is an error; shadowing an outer scope's variable of the same
// name is fine.
func (p *Parser) declareVariable(name token.Token) {
	if p.compiler.scopeDepth == 0 {
		return
	}
	for i := len(p.compiler.locals) - 1; i >= 0; i-- {
		local := p.compiler.locals[i]
		if local.Depth != uninitialized && local.Depth < p.compiler.scopeDepth {
			break
		}
		if local.Name == name.Literal {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) resolveLocal(c *compilerState, name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name.Literal {
			if c.locals[i].Depth == uninitialized {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *Parser) markInitialized() {
	if p.compiler.scopeDepth == 0 {
		return
	}
	p.compiler.locals[len(p.compiler.locals)-1].Depth = p.compiler.scopeDepth
}

// parseVariable consumes an identifier, declares it, and (for globals
// only) returns the constant-pool index of its name.
func (p *Parser) parseVariable(errMsg string) uint16 {
	p.consume(token.IDENT, errMsg)
	name := p.previous
	p.declareVariable(name)
	if p.compiler.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(name)
}

func (p *Parser) defineVariable(global uint16) {
	if p.compiler.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpShort(vm.OP_DEFINE_GLOBAL, global)
}

// ----------------------------------------------------------------------
// Pratt expression parsing
// ----------------------------------------------------------------------

func (p *Parser) parsePrecedence(prec Precedence) {
	p.advance()
	prefix := getRule(p.previous.Type).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(p, canAssign)

	for prec <= getRule(p.current.Type).precedence {
		p.advance()
		infix := getRule(p.previous.Type).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.ASSIGN) {
		p.error("Invalid assignment target.")
	}
}

func (p *Parser) expression() {
	p.parsePrecedence(PrecAssignment)
}

func number(p *Parser, canAssign bool) {
	var v float64
	fmt.Sscanf(p.previous.Literal, "%g", &v)
	p.emitConstant(vm.NewNumber(v))
}

func stringLiteral(p *Parser, canAssign bool) {
	p.emitConstant(vm.NewString(p.previous.Literal))
}

func literal(p *Parser, canAssign bool) {
	switch p.previous.Type {
	case token.FALSE:
		p.emitOp(vm.OP_FALSE)
	case token.TRUE:
		p.emitOp(vm.OP_TRUE)
	case token.NIL:
		p.emitOp(vm.OP_NIL)
	}
}

func grouping(p *Parser, canAssign bool) {
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after expression.")
}

func unary(p *Parser, canAssign bool) {
	operator := p.previous.Type
	p.parsePrecedence(PrecUnary)
	switch operator {
	case token.MINUS:
		p.emitOp(vm.OP_NEGATE)
	case token.BANG:
		p.emitOp(vm.OP_NOT)
	}
}

func binary(p *Parser, canAssign bool) {
	operator := p.previous.Type
	rule := getRule(operator)
	p.parsePrecedence(rule.precedence + 1)

	switch operator {
	case token.PLUS:
		p.emitOp(vm.OP_ADD)
	case token.MINUS:
		p.emitOp(vm.OP_SUBTRACT)
	case token.ASTERISK:
		p.emitOp(vm.OP_MULTIPLY)
	case token.SLASH:
		p.emitOp(vm.OP_DIVIDE)
	case token.EQ:
		p.emitOp(vm.OP_EQUAL)
	case token.NOT_EQ:
		p.emitOp(vm.OP_EQUAL)
		p.emitOp(vm.OP_NOT)
	case token.GT:
		p.emitOp(vm.OP_GREATER)
	case token.GE:
		p.emitOp(vm.OP_LESS)
		p.emitOp(vm.OP_NOT)
	case token.LT:
		p.emitOp(vm.OP_LESS)
	case token.LE:
		p.emitOp(vm.OP_GREATER)
		p.emitOp(vm.OP_NOT)
	}
}

// and_ implements short-circuiting `and` via a single conditional jump:
// if the left side is false, skip the right side entirely and leave the
// (falsey) left value as the result.
func and_(p *Parser, canAssign bool) {
	endJump := p.emitJump(vm.OP_JUMP_IF_FALSE)
	p.emitOp(vm.OP_POP)
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

// or_ is and_'s mirror image: if the left side is true, skip the right
// side and leave the (truthy) left value as the result.
func or_(p *Parser, canAssign bool) {
	elseJump := p.emitJump(vm.OP_JUMP_IF_FALSE)
	endJump := p.emitJump(vm.OP_JUMP)
	p.patchJump(elseJump)
	p.emitOp(vm.OP_POP)
	p.parsePrecedence(PrecOr)
	p.patchJump(endJump)
}

func variable(p *Parser, canAssign bool) {
	namedVariable(p, p.previous, canAssign)
}

func namedVariable(p *Parser, name token.Token, canAssign bool) {
	var getOp, setOp vm.Opcode
	arg := p.resolveLocal(p.compiler, name)
	local := arg != -1
	var short uint16
	if local {
		getOp, setOp = vm.OP_GET_LOCAL, vm.OP_SET_LOCAL
	} else {
		short = p.identifierConstant(name)
		getOp, setOp = vm.OP_GET_GLOBAL, vm.OP_SET_GLOBAL
	}

	if canAssign && p.match(token.ASSIGN) {
		p.expression()
		if local {
			p.emitOpByte(setOp, byte(arg))
		} else {
			p.emitOpShort(setOp, short)
		}
		return
	}
	if local {
		p.emitOpByte(getOp, byte(arg))
	} else {
		p.emitOpShort(getOp, short)
	}
}

func call(p *Parser, canAssign bool) {
	argCount := argumentList(p)
	p.emitOpByte(vm.OP_CALL, argCount)
}

func argumentList(p *Parser) byte {
	var count int
	if !p.check(token.RPAREN) {
		for {
			p.expression()
			if count == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

// ----------------------------------------------------------------------
// Statements and declarations
// ----------------------------------------------------------------------

func (p *Parser) declaration() {
	switch {
	case p.match(token.VAR):
		p.varDeclaration()
	case p.match(token.FUN):
		p.funDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")

	if p.match(token.ASSIGN) {
		p.expression()
	} else {
		p.emitOp(vm.OP_NIL)
	}
	p.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *Parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(funcTypeFunction)
	p.defineVariable(global)
}

// function compiles a `fun` body in its own compilerState, registers
// the finished Function in the shared table, and leaves a OP_CONSTANT
// referencing it (by table id) on the enclosing function's stack.
func (p *Parser) function(funcType FuncType) {
	name := p.previous.Literal
	fn := &vm.Function{Name: name, Chunk: vm.NewChunk()}
	id := p.functions.Add(fn)

	p.compiler = &compilerState{
		enclosing:  p.compiler,
		function:   fn,
		functionID: id,
		funcType:   funcType,
	}

	p.beginScope()
	// Slot 0 holds the callee itself (see OP_CALL's stack layout in vm.go);
	// reserving it here keeps parameter slots numbered from 1.
	p.compiler.locals = append(p.compiler.locals, Local{Name: "", Depth: 0})
	p.consume(token.LPAREN, "Expect '(' after function name.")
	if !p.check(token.RPAREN) {
		for {
			fn.Arity++
			if fn.Arity > 255 {
				p.error("Can't have more than 255 parameters.")
			}
			paramConst := p.parseVariable("Expect parameter name.")
			p.defineVariable(paramConst)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "Expect ')' after parameters.")
	p.consume(token.LBRACE, "Expect '{' before function body.")
	p.block()

	p.endCompiler()
	p.emitConstant(vm.NewFunction(id))
}

func (p *Parser) block() {
	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBRACE, "Expect '}' after block.")
}

func (p *Parser) statement() {
	switch {
	case p.match(token.PRINT):
		p.printStatement()
	case p.match(token.IF):
		p.ifStatement()
	case p.match(token.WHILE):
		p.whileStatement()
	case p.match(token.FOR):
		p.forStatement()
	case p.match(token.RETURN):
		p.returnStatement()
	case p.match(token.LBRACE):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after value.")
	p.emitOp(vm.OP_PRINT)
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after expression.")
	p.emitOp(vm.OP_POP)
}

func (p *Parser) returnStatement() {
	if p.compiler.funcType == funcTypeScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.SEMICOLON) {
		p.emitReturn()
		return
	}
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after return value.")
	p.emitOp(vm.OP_RETURN)
}

func (p *Parser) ifStatement() {
	p.consume(token.LPAREN, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := p.emitJump(vm.OP_JUMP_IF_FALSE)
	p.emitOp(vm.OP_POP)
	p.statement()

	elseJump := p.emitJump(vm.OP_JUMP)
	p.patchJump(thenJump)
	p.emitOp(vm.OP_POP)

	if p.match(token.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := p.currentChunk().Count()
	p.consume(token.LPAREN, "Expect '(' after 'while'.")
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := p.emitJump(vm.OP_JUMP_IF_FALSE)
	p.emitOp(vm.OP_POP)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(vm.OP_POP)
}

// forStatement desugars `for (init; cond; incr) body` into the
// equivalent while-loop bytecode: init runs once, then the condition
// jump, body, and an incr block spliced in between body and the jump
// back to cond — the incr code is compiled where it's written but
// executed after the body via a pair of jumps (bodyJump/emitLoop).
func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case p.match(token.SEMICOLON):
		// no initializer
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := p.currentChunk().Count()
	exitJump := -1
	if !p.match(token.SEMICOLON) {
		p.expression()
		p.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = p.emitJump(vm.OP_JUMP_IF_FALSE)
		p.emitOp(vm.OP_POP)
	}

	if !p.match(token.RPAREN) {
		bodyJump := p.emitJump(vm.OP_JUMP)
		incrementStart := p.currentChunk().Count()
		p.expression()
		p.emitOp(vm.OP_POP)
		p.consume(token.RPAREN, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(vm.OP_POP)
	}
	p.endScope()
}
