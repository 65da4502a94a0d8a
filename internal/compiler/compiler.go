// Package compiler turns a token stream into bytecode plus the side tables
// the runtime needs: a single pass over the tokens with a stack of open
// structs, mirroring HewlettPackard-structex's transcoder.transcode
// recursive walk but driven by an explicit token stack instead of
// reflect.Value recursion, since there is no Go struct to recurse over here
// — the "struct" is schema text, not a typed value.
package compiler

import (
	"strconv"

	"github.com/binschema/bbp/bbperr"
	"github.com/binschema/bbp/internal/bytecode"
	"github.com/binschema/bbp/internal/expr"
	"github.com/binschema/bbp/internal/token"
)

// NamedField is one entry of the named-field side table: the dotted path and
// leaf name assigned to a NAMED instruction, and the bytecode offset of that
// instruction's first byte.
type NamedField struct {
	Path   string
	Leaf   string
	Offset int
}

// ExprEntry is one entry of the length-expression side table.
type ExprEntry struct {
	Expr *expr.Expr
}

// CustomDescriptor is one entry of the custom-type descriptor side table:
// the original type parameters of a CUSTOM_TYPE instruction.
type CustomDescriptor struct {
	TypeName     string
	LittleEndian bool
	ExtraText    string
}

// Program is the immutable output of a successful compile: bytecode plus its
// side tables. Safe for concurrent use by multiple runtime parses.
type Program struct {
	Code    []byte
	Names   []NamedField
	Exprs   []ExprEntry
	Customs []CustomDescriptor
}

// TypeRecognizer lets a caller-supplied custom-type processor veto type
// names the compiler doesn't itself know.
type TypeRecognizer interface {
	Recognizes(name string) bool
}

var builtinOps = map[string]bytecode.Op{
	"bit":      bytecode.OpBit,
	"bool":     bytecode.OpBool,
	"byte":     bytecode.OpByte,
	"ubyte":    bytecode.OpUByte,
	"short":    bytecode.OpShort,
	"ushort":   bytecode.OpUShort,
	"int":      bytecode.OpInt,
	"long":     bytecode.OpLong,
	"skip":     bytecode.OpSkip,
	"align":    bytecode.OpAlign,
	"var":      bytecode.OpVar,
	"reset$$":  bytecode.OpResetCounter,
}

type frame struct {
	name        string
	startOffset int // offset of the first instruction of this struct's body

	// set when this struct itself was declared as the whole-stream array;
	// on STRUCT_END, triggers the "no more instructions except closes"
	// restriction for the remainder of the *parent* scope.
	closesIntoRestriction bool
	restrictionTarget     int
}

type compiler struct {
	code  []byte
	names []NamedField
	exprs []ExprEntry
	cust  []CustomDescriptor

	stack      []frame
	scopeNames map[string]map[string]bool

	wholeStreamSeen        bool
	wholeStreamRestricting bool
	wholeStreamTarget      int

	recognizer TypeRecognizer
}

// Compile compiles schema text into a Program. recognizer may be nil, in
// which case any type name outside the builtin set is a CompilationError.
func Compile(source string, recognizer TypeRecognizer) (*Program, error) {
	toks, err := token.Tokens(source)
	if err != nil {
		return nil, err
	}

	c := &compiler{
		scopeNames: map[string]map[string]bool{},
		recognizer: recognizer,
	}

	for _, tok := range toks {
		if tok.Kind == token.Comment {
			continue
		}
		if err := c.checkRestriction(tok); err != nil {
			return nil, err
		}
		switch tok.Kind {
		case token.StructClose:
			if err := c.compileStructEnd(tok); err != nil {
				return nil, err
			}
		case token.StructOpen:
			if err := c.compileStructOpen(tok); err != nil {
				return nil, err
			}
		case token.Atom:
			if err := c.compileAtom(tok); err != nil {
				return nil, err
			}
		}
	}

	if len(c.stack) != 0 {
		return nil, bbperr.NewCompilation("", "unbalanced schema: %d struct(s) left open", len(c.stack))
	}

	return &Program{Code: c.code, Names: c.names, Exprs: c.exprs, Customs: c.cust}, nil
}

// checkRestriction enforces that any instruction after a whole-stream array
// is rejected unless it closes the struct that contained it.
func (c *compiler) checkRestriction(tok token.Token) error {
	if !c.wholeStreamRestricting {
		return nil
	}
	if tok.Kind != token.StructClose {
		return bbperr.NewCompilation(tok.Text, "instruction follows a whole-stream array outside its containing struct")
	}
	return nil
}

func (c *compiler) currentScope() string {
	parts := make([]string, 0, len(c.stack))
	for _, f := range c.stack {
		if f.name != "" {
			parts = append(parts, f.name)
		}
	}
	return joinParts(parts)
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func joinPath(scope, leaf string) string {
	if scope == "" {
		return leaf
	}
	return scope + "." + leaf
}

func (c *compiler) registerName(scope, leaf string, tok token.Token) error {
	if containsDot(leaf) {
		return bbperr.NewCompilation(tok.Text, "field name %q may not contain '.'", leaf)
	}
	m := c.scopeNames[scope]
	if m == nil {
		m = map[string]bool{}
		c.scopeNames[scope] = m
	}
	if m[leaf] {
		return bbperr.NewCompilation(tok.Text, "duplicate field name %q in scope %q", leaf, scopeLabel(scope))
	}
	m[leaf] = true
	return nil
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "<root>"
	}
	return scope
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

func parseIntLiteral(s string) (int32, bool) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// arraySpec resolves a token's array-size text into flag bits and, for a
// literal size, the operand to write; it registers a length-expression entry
// for a computed (non-"_") size.
func (c *compiler) arraySpec(size, scope string, tok token.Token) (flags, ext byte, literal int32, hasLiteral, wholeStream bool, err error) {
	switch {
	case size == "":
		return 0, 0, 0, false, false, nil
	case size == "_":
		if c.wholeStreamSeen {
			return 0, 0, 0, false, false, bbperr.NewCompilation(tok.Text, "only one whole-stream ('_') array is allowed per schema")
		}
		return 0, bytecode.ExtArrayExprOrWholeStream, 0, false, true, nil
	default:
		if v, ok := parseIntLiteral(size); ok {
			if v < 0 {
				return 0, 0, 0, false, false, bbperr.NewCompilation(tok.Text, "array size %d must be >= 0", v)
			}
			return bytecode.FlagArray, 0, v, true, false, nil
		}
		ex, cerr := expr.Compile(size, scope, len(c.names))
		if cerr != nil {
			return 0, 0, 0, false, false, cerr
		}
		c.exprs = append(c.exprs, ExprEntry{Expr: ex})
		return bytecode.FlagArray, bytecode.ExtArrayExprOrWholeStream, 0, false, false, nil
	}
}

// extraSpec resolves a token's extra-data text the same way, for the
// BIT/ALIGN/SKIP/VAR/CUSTOM_TYPE extra-data slot.
func (c *compiler) extraSpec(extra, scope string) (ext byte, literal int32, hasLiteral bool, err error) {
	if extra == "" {
		return bytecode.ExtNoExtra, 0, false, nil
	}
	if v, ok := parseIntLiteral(extra); ok {
		return 0, v, true, nil
	}
	ex, cerr := expr.Compile(extra, scope, len(c.names))
	if cerr != nil {
		return 0, 0, false, cerr
	}
	c.exprs = append(c.exprs, ExprEntry{Expr: ex})
	return bytecode.ExtExtraIsExpression, 0, false, nil
}

func (c *compiler) emitFirstBytes(op bytecode.Op, flags, ext byte) {
	if ext != 0 {
		flags |= bytecode.FlagWide
	}
	c.code = append(c.code, bytecode.EncodeFirstByte(op, flags))
	if flags&bytecode.FlagWide != 0 {
		c.code = append(c.code, ext)
	}
}

func (c *compiler) compileAtom(tok token.Token) error {
	scope := c.currentScope()

	op, isBuiltin := builtinOps[tok.Type]
	var custom *CustomDescriptor
	if !isBuiltin {
		if c.recognizer != nil && !c.recognizer.Recognizes(tok.Type) {
			return bbperr.NewCompilation(tok.Text, "custom type %q rejected by the registered type processor", tok.Type)
		}
		if c.recognizer == nil {
			return bbperr.NewCompilation(tok.Text, "unknown type %q", tok.Type)
		}
		op = bytecode.OpCustomType
		custom = &CustomDescriptor{TypeName: tok.Type, LittleEndian: tok.Order == token.OrderLittle, ExtraText: tok.Extra}
	}

	noNameNoArray := op == bytecode.OpAlign || op == bytecode.OpSkip || op == bytecode.OpResetCounter
	if noNameNoArray {
		if tok.Name != "" {
			return bbperr.NewCompilation(tok.Text, "%s fields may not be named", op)
		}
		if tok.Size != "" {
			return bbperr.NewCompilation(tok.Text, "%s fields may not be arrays", op)
		}
	}

	extraAllowed := op == bytecode.OpBit || op == bytecode.OpAlign || op == bytecode.OpSkip || op == bytecode.OpVar || op == bytecode.OpCustomType
	if !extraAllowed && tok.Extra != "" {
		return bbperr.NewCompilation(tok.Text, "type %q does not accept extra-data", tok.Type)
	}
	extraRequired := op == bytecode.OpBit || op == bytecode.OpAlign || op == bytecode.OpSkip
	if extraRequired && tok.Extra == "" {
		return bbperr.NewCompilation(tok.Text, "type %q requires extra-data", tok.Type)
	}

	arrFlags, arrExt, arrLiteral, arrHasLiteral, wholeStream, err := c.arraySpec(tok.Size, scope, tok)
	if err != nil {
		return err
	}

	var extExt byte
	var extLiteral int32
	var extHasLiteral bool
	if extraAllowed {
		extExt, extLiteral, extHasLiteral, err = c.extraSpec(tok.Extra, scope)
		if err != nil {
			return err
		}
	}

	if op == bytecode.OpBit && extHasLiteral && (extLiteral < 1 || extLiteral > 8) {
		return bbperr.NewCompilation(tok.Text, "bit width %d out of range 1..8", extLiteral)
	}
	if op == bytecode.OpAlign && extHasLiteral && extLiteral <= 0 {
		return bbperr.NewCompilation(tok.Text, "align modulus %d must be > 0", extLiteral)
	}
	if op == bytecode.OpSkip && extHasLiteral && extLiteral < 0 {
		return bbperr.NewCompilation(tok.Text, "skip count %d must be >= 0", extLiteral)
	}

	flags := arrFlags
	if tok.Name != "" {
		flags |= bytecode.FlagNamed
	}
	if tok.Order == token.OrderLittle {
		flags |= bytecode.FlagLittleEndian
	}
	ext := arrExt | extExt

	instrOffset := len(c.code)
	c.emitFirstBytes(op, flags, ext)

	if arrHasLiteral {
		c.code = bytecode.AppendPackedInt(c.code, arrLiteral)
	}
	if extHasLiteral {
		c.code = bytecode.AppendPackedInt(c.code, extLiteral)
	}
	if op == bytecode.OpCustomType {
		idx := int32(len(c.cust))
		c.cust = append(c.cust, *custom)
		c.code = bytecode.AppendPackedInt(c.code, idx)
	}

	if tok.Name != "" {
		if err := c.registerName(scope, tok.Name, tok); err != nil {
			return err
		}
		c.names = append(c.names, NamedField{Path: joinPath(scope, tok.Name), Leaf: tok.Name, Offset: instrOffset})
	}

	if wholeStream {
		c.wholeStreamSeen = true
		c.wholeStreamRestricting = true
		target := -1
		if len(c.stack) > 0 {
			target = len(c.stack) - 1
		}
		c.wholeStreamTarget = target
	}

	return nil
}

func (c *compiler) compileStructOpen(tok token.Token) error {
	scope := c.currentScope()

	arrFlags, arrExt, arrLiteral, arrHasLiteral, wholeStream, err := c.arraySpec(tok.Size, scope, tok)
	if err != nil {
		return err
	}

	flags := arrFlags
	if tok.Name != "" {
		flags |= bytecode.FlagNamed
	}
	if tok.Order == token.OrderLittle {
		flags |= bytecode.FlagLittleEndian
	}

	instrOffset := len(c.code)
	c.emitFirstBytes(bytecode.OpStructStart, flags, arrExt)
	if arrHasLiteral {
		c.code = bytecode.AppendPackedInt(c.code, arrLiteral)
	}

	if tok.Name != "" {
		if err := c.registerName(scope, tok.Name, tok); err != nil {
			return err
		}
		c.names = append(c.names, NamedField{Path: joinPath(scope, tok.Name), Leaf: tok.Name, Offset: instrOffset})
	}

	fr := frame{name: tok.Name, startOffset: len(c.code)}
	if wholeStream {
		c.wholeStreamSeen = true
		fr.closesIntoRestriction = true
		fr.restrictionTarget = -1
		if len(c.stack) > 0 {
			fr.restrictionTarget = len(c.stack) - 1
		}
	}

	c.stack = append(c.stack, fr)
	return nil
}

func (c *compiler) compileStructEnd(tok token.Token) error {
	if len(c.stack) == 0 {
		return bbperr.NewCompilation(tok.Text, "unmatched '}'")
	}
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	c.code = append(c.code, bytecode.EncodeFirstByte(bytecode.OpStructEnd, 0))
	c.code = bytecode.AppendPackedInt(c.code, int32(top.startOffset))

	if top.closesIntoRestriction {
		c.wholeStreamRestricting = true
		c.wholeStreamTarget = top.restrictionTarget
	} else if c.wholeStreamRestricting && len(c.stack) == c.wholeStreamTarget {
		// The struct containing the whole-stream array has now fully
		// closed; the restriction no longer applies to whatever follows.
		c.wholeStreamRestricting = false
	}

	return nil
}
