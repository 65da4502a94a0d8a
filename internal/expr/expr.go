// Package expr compiles and evaluates the arithmetic/logical expressions used
// for computed array lengths and extra-data slots. Expressions are compiled
// once, at schema-compile time, into a flat postfix tape and evaluated later
// by a small stack machine — name resolution happens once, evaluation itself
// is allocation-free beyond the value stack.
package expr

import (
	"strconv"
	"strings"

	"github.com/binschema/bbp/bbperr"
)

// opKind identifies a postfix-tape entry.
type opKind int

const (
	opConst opKind = iota
	opName
	opExternal
	opStreamPos
	opUnaryNeg
	opUnaryNot
	opMul
	opDiv
	opMod
	opAdd
	opSub
	opShl
	opShr
	opUShr
	opAnd
	opOr
	opXor
)

type instr struct {
	kind opKind
	num  int32  // for opConst
	name string // for opName/opExternal
}

// Expr is a compiled expression: a postfix tape plus the lexical context
// (struct scope and the count of named fields visible at the point it was
// compiled) needed to resolve bare names at evaluation time.
type Expr struct {
	tape  []instr
	Scope string // dotted path of the struct this expression lives in ("" at root)
	// VisibleUpTo restricts name resolution to named fields registered before
	// this index in the compiler's named-field vector: only fields defined
	// strictly before the expression's own instruction are visible to it.
	VisibleUpTo int
	Source      string // original expression text, for diagnostics
}

// Environment supplies the values an Expr may reference during evaluation.
type Environment interface {
	// Lookup resolves name (possibly dotted) starting from scope and falling
	// back to enclosing scopes, restricted to the first visibleUpTo entries
	// of the named-field vector. ok is false if unresolved.
	Lookup(scope, name string, visibleUpTo int) (int32, bool)
	// External resolves a "$name" reference. ok is false if unresolved.
	External(name string) (int32, bool)
	// StreamPos returns the current byte counter ("$$").
	StreamPos() int32
}

// Compile parses an infix expression and compiles it to a postfix tape bound
// to scope, with name visibility restricted to the first visibleUpTo entries
// of the named-field vector at the point of compilation.
func Compile(source, scope string, visibleUpTo int) (*Expr, error) {
	p := &parser{lex: newExprLexer(source), source: source}
	if err := p.next(); err != nil {
		return nil, err
	}
	var tape []instr
	if err := p.parseXor(&tape); err != nil {
		return nil, err
	}
	if p.tok.kind != etEOF {
		return nil, bbperr.NewTokenization(source, "unexpected trailing input at %q", p.tok.text)
	}
	return &Expr{tape: tape, Scope: scope, VisibleUpTo: visibleUpTo, Source: source}, nil
}

// Eval executes the compiled tape against env using signed 32-bit
// two's-complement arithmetic (Go's native int32 semantics already wrap on
// overflow, so no explicit masking is required beyond the shift operators).
func (e *Expr) Eval(env Environment) (int32, error) {
	var stack []int32
	push := func(v int32) { stack = append(stack, v) }
	pop := func() int32 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, in := range e.tape {
		switch in.kind {
		case opConst:
			push(in.num)
		case opName:
			v, ok := env.Lookup(e.Scope, in.name, e.VisibleUpTo)
			if !ok {
				return 0, bbperr.NewExpression("unresolved name %q in expression %q", in.name, e.Source)
			}
			push(v)
		case opExternal:
			v, ok := env.External(in.name)
			if !ok {
				return 0, bbperr.NewExpression("unresolved external value $%s in expression %q", in.name, e.Source)
			}
			push(v)
		case opStreamPos:
			push(env.StreamPos())
		case opUnaryNeg:
			push(-pop())
		case opUnaryNot:
			push(^pop())
		case opMul:
			b, a := pop(), pop()
			push(a * b)
		case opDiv:
			b, a := pop(), pop()
			if b == 0 {
				return 0, bbperr.NewExpression("division by zero in expression %q", e.Source)
			}
			push(a / b)
		case opMod:
			b, a := pop(), pop()
			if b == 0 {
				return 0, bbperr.NewExpression("modulus by zero in expression %q", e.Source)
			}
			push(a % b)
		case opAdd:
			b, a := pop(), pop()
			push(a + b)
		case opSub:
			b, a := pop(), pop()
			push(a - b)
		case opShl:
			b, a := pop(), pop()
			push(a << (uint32(b) & 31))
		case opShr:
			b, a := pop(), pop()
			push(a >> (uint32(b) & 31))
		case opUShr:
			b, a := pop(), pop()
			push(int32(uint32(a) >> (uint32(b) & 31)))
		case opAnd:
			b, a := pop(), pop()
			push(a & b)
		case opOr:
			b, a := pop(), pop()
			push(a | b)
		case opXor:
			b, a := pop(), pop()
			push(a ^ b)
		}
	}
	if len(stack) != 1 {
		return 0, bbperr.NewInternal(-1, "expression %q left %d values on the stack", e.Source, len(stack))
	}
	return stack[0], nil
}

// --- infix -> postfix recursive-descent compiler ---
//
// Precedence, tightest to loosest: unary ~ - ; * / % ; + - ;
// << >> >>> ; & ; | ; ^. Each parse level below corresponds to one row,
// outermost (loosest, ^) first.

type parser struct {
	lex    *exprLexer
	tok    exprToken
	source string
}

func (p *parser) next() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseXor(tape *[]instr) error {
	if err := p.parseOr(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && p.tok.text == "^" {
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseOr(tape); err != nil {
			return err
		}
		*tape = append(*tape, instr{kind: opXor})
	}
	return nil
}

func (p *parser) parseOr(tape *[]instr) error {
	if err := p.parseAnd(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && p.tok.text == "|" {
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseAnd(tape); err != nil {
			return err
		}
		*tape = append(*tape, instr{kind: opOr})
	}
	return nil
}

func (p *parser) parseAnd(tape *[]instr) error {
	if err := p.parseShift(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && p.tok.text == "&" {
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseShift(tape); err != nil {
			return err
		}
		*tape = append(*tape, instr{kind: opAnd})
	}
	return nil
}

func (p *parser) parseShift(tape *[]instr) error {
	if err := p.parseAddSub(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && (p.tok.text == "<<" || p.tok.text == ">>" || p.tok.text == ">>>") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseAddSub(tape); err != nil {
			return err
		}
		switch op {
		case "<<":
			*tape = append(*tape, instr{kind: opShl})
		case ">>":
			*tape = append(*tape, instr{kind: opShr})
		case ">>>":
			*tape = append(*tape, instr{kind: opUShr})
		}
	}
	return nil
}

func (p *parser) parseAddSub(tape *[]instr) error {
	if err := p.parseMulDiv(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseMulDiv(tape); err != nil {
			return err
		}
		if op == "+" {
			*tape = append(*tape, instr{kind: opAdd})
		} else {
			*tape = append(*tape, instr{kind: opSub})
		}
	}
	return nil
}

func (p *parser) parseMulDiv(tape *[]instr) error {
	if err := p.parseUnary(tape); err != nil {
		return err
	}
	for p.tok.kind == etOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseUnary(tape); err != nil {
			return err
		}
		switch op {
		case "*":
			*tape = append(*tape, instr{kind: opMul})
		case "/":
			*tape = append(*tape, instr{kind: opDiv})
		case "%":
			*tape = append(*tape, instr{kind: opMod})
		}
	}
	return nil
}

func (p *parser) parseUnary(tape *[]instr) error {
	if p.tok.kind == etOp && (p.tok.text == "~" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseUnary(tape); err != nil {
			return err
		}
		if op == "~" {
			*tape = append(*tape, instr{kind: opUnaryNot})
		} else {
			*tape = append(*tape, instr{kind: opUnaryNeg})
		}
		return nil
	}
	return p.parsePrimary(tape)
}

func (p *parser) parsePrimary(tape *[]instr) error {
	switch p.tok.kind {
	case etNumber:
		v, err := strconv.ParseInt(p.tok.text, 10, 64)
		if err != nil {
			return bbperr.NewTokenization(p.source, "invalid integer literal %q", p.tok.text)
		}
		*tape = append(*tape, instr{kind: opConst, num: int32(v)})
		return p.next()
	case etStreamPos:
		*tape = append(*tape, instr{kind: opStreamPos})
		return p.next()
	case etExternal:
		*tape = append(*tape, instr{kind: opExternal, name: p.tok.text})
		return p.next()
	case etIdent:
		*tape = append(*tape, instr{kind: opName, name: p.tok.text})
		return p.next()
	case etLParen:
		if err := p.next(); err != nil {
			return err
		}
		if err := p.parseXor(tape); err != nil {
			return err
		}
		if p.tok.kind != etRParen {
			return bbperr.NewTokenization(p.source, "expected ')' in expression %q", p.source)
		}
		return p.next()
	default:
		return bbperr.NewTokenization(p.source, "unexpected token %q in expression", p.tok.text)
	}
}

// --- expression lexer ---

type exprTokKind int

const (
	etEOF exprTokKind = iota
	etNumber
	etIdent
	etExternal
	etStreamPos
	etOp
	etLParen
	etRParen
)

type exprToken struct {
	kind exprTokKind
	text string
}

type exprLexer struct {
	src string
	pos int
}

func newExprLexer(src string) *exprLexer { return &exprLexer{src: src} }

func (l *exprLexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *exprLexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *exprLexer) next() (exprToken, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return exprToken{kind: etEOF}, nil
	}
	b := l.peek()
	switch {
	case b >= '0' && b <= '9':
		start := l.pos
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		return exprToken{kind: etNumber, text: l.src[start:l.pos]}, nil
	case b == '$':
		if l.peekAt(1) == '$' {
			l.pos += 2
			return exprToken{kind: etStreamPos, text: "$$"}, nil
		}
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && isExprIdentCont(l.src[l.pos]) {
			l.pos++
		}
		if start == l.pos {
			return exprToken{}, bbperr.NewTokenization(l.src, "expected identifier after '$'")
		}
		return exprToken{kind: etExternal, text: l.src[start:l.pos]}, nil
	case isExprIdentStart(b):
		start := l.pos
		for l.pos < len(l.src) && (isExprIdentCont(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return exprToken{kind: etIdent, text: l.src[start:l.pos]}, nil
	case b == '(':
		l.pos++
		return exprToken{kind: etLParen, text: "("}, nil
	case b == ')':
		l.pos++
		return exprToken{kind: etRParen, text: ")"}, nil
	case b == '>' && l.peekAt(1) == '>' && l.peekAt(2) == '>':
		l.pos += 3
		return exprToken{kind: etOp, text: ">>>"}, nil
	case b == '>' && l.peekAt(1) == '>':
		l.pos += 2
		return exprToken{kind: etOp, text: ">>"}, nil
	case b == '<' && l.peekAt(1) == '<':
		l.pos += 2
		return exprToken{kind: etOp, text: "<<"}, nil
	case strings.IndexByte("~-*/%+&|^", b) >= 0:
		l.pos++
		return exprToken{kind: etOp, text: string(b)}, nil
	default:
		return exprToken{}, bbperr.NewTokenization(l.src, "unexpected character %q in expression", string(b))
	}
}

func isExprIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isExprIdentCont(b byte) bool {
	return isExprIdentStart(b) || (b >= '0' && b <= '9')
}
