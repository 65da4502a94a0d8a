// Package token turns schema text into a lazy sequence of typed tokens. The
// scanner is a hand-written rune-by-rune state machine in the style of
// HewlettPackard-structex's tags.go parseString — a small imperative loop
// over runs of characters rather than a generated lexer, since the grammar
// is tiny and fixed.
package token

import (
	"strings"

	"github.com/binschema/bbp/bbperr"
)

// Kind identifies the four token shapes the grammar produces.
type Kind int

const (
	Atom Kind = iota
	StructOpen
	StructClose
	Comment
)

func (k Kind) String() string {
	switch k {
	case Atom:
		return "ATOM"
	case StructOpen:
		return "STRUCT_OPEN"
	case StructClose:
		return "STRUCT_CLOSE"
	case Comment:
		return "COMMENT"
	default:
		return "UNKNOWN"
	}
}

// Order is the optional byte-order qualifier prefix.
type Order int

const (
	OrderUnspecified Order = iota
	OrderLittle
	OrderBig
)

// Token is one lexical unit of schema text.
type Token struct {
	Kind Kind
	Pos  int // byte offset in the source text, for diagnostics

	Type  string // lowercased type name; unset for STRUCT_* and COMMENT
	Name  string // optional field/struct name
	Size  string // raw array-size text: "", a literal, an expression, or "_"
	Extra string // raw extra-data text: "", a literal, or an expression
	Order Order

	Text string // original source text this token was scanned from
}

// String renders a Token for diagnostics and error messages.
func (t Token) String() string {
	if t.Text != "" {
		return t.Text
	}
	return t.Kind.String()
}

// Lexer scans schema text into a sequence of Tokens, one at a time.
type Lexer struct {
	src string
	pos int
}

// New creates a Lexer over schema text.
func New(src string) *Lexer {
	return &Lexer{src: src}
}

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func isSep(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == ';'
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// skipSeparators consumes whitespace and ';' but stops at a comment or '}'.
func (l *Lexer) skipSeparators() {
	for !l.eof() && isSep(l.peek()) {
		l.pos++
	}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for !l.eof() && isIdentCont(l.peek()) {
		l.pos++
	}
	return l.src[start:l.pos]
}

// readBalanced reads up to (not including) the first occurrence of any byte
// in stop that is not nested inside a matching '(' ')' pair — used for
// colon-form extra-data expressions, so stop bytes (such as a space) inside
// parentheses do not end the expression.
func (l *Lexer) readBalanced(stop string) string {
	start := l.pos
	depth := 0
	for !l.eof() {
		b := l.peek()
		if depth == 0 && b == '/' && l.peekAt(1) == '/' {
			break // a line comment ends the expression, never a literal '/'
		}
		if depth == 0 && strings.IndexByte(stop, b) >= 0 {
			break
		}
		if b == '(' {
			depth++
		} else if b == ')' {
			depth--
		}
		l.pos++
	}
	return strings.TrimSpace(l.src[start:l.pos])
}

func (l *Lexer) skipSpacesOnly() {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t' || l.peek() == '\r' || l.peek() == '\n') {
		l.pos++
	}
}

// Next returns the next token in the stream, or io.EOF-equivalent (ok=false,
// err=nil) when the input is exhausted.
func (l *Lexer) Next() (tok Token, ok bool, err error) {
	l.skipSeparators()
	if l.eof() {
		return Token{}, false, nil
	}

	start := l.pos

	if l.peek() == '/' && l.peekAt(1) == '/' {
		l.pos += 2
		cstart := l.pos
		for !l.eof() && l.peek() != '\n' {
			l.pos++
		}
		text := l.src[cstart:l.pos]
		return Token{Kind: Comment, Pos: start, Text: "//" + text}, true, nil
	}

	if l.peek() == '}' {
		l.pos++
		return Token{Kind: StructClose, Pos: start, Text: "}"}, true, nil
	}

	order := OrderUnspecified
	if l.peek() == '<' {
		order = OrderLittle
		l.pos++
	} else if l.peek() == '>' {
		order = OrderBig
		l.pos++
	}

	l.skipSpacesOnly()
	if l.eof() || !isIdentStart(l.peek()) {
		if l.peek() == '{' {
			l.pos++
			return Token{Kind: StructOpen, Pos: start, Order: order, Text: l.src[start:l.pos]}, true, nil
		}
		return Token{}, false, bbperr.NewTokenization(l.remainder(), "unexpected character %q", string(l.peek()))
	}

	ident := l.readIdent()
	if ident == "reset" && l.peek() == '$' && l.peekAt(1) == '$' {
		l.pos += 2
		ident = "reset$$"
	}
	l.skipSpacesOnly()

	switch {
	case l.peek() == ':':
		// field := type ':' extra ['[' size ']']? name?
		// Whitespace always terminates extra here (unlike a bracketed size,
		// it has no closing delimiter of its own), so a colon-form extra
		// expression must be written without top-level spaces.
		l.pos++
		l.skipSpacesOnly()
		extra := l.readBalanced(" \t[;}\n")
		size := ""
		l.skipSpacesOnly()
		if l.peek() == '[' {
			size = l.readBracketed()
		}
		name := l.readTrailingName()
		return Token{
			Kind: Atom, Pos: start, Type: strings.ToLower(ident), Extra: extra,
			Size: size, Name: name, Order: order, Text: l.src[start:l.pos],
		}, true, nil

	case l.peek() == '[':
		size := l.readBracketed()
		l.skipSpacesOnly()
		if l.peek() == '{' {
			l.pos++
			return Token{
				Kind: StructOpen, Pos: start, Name: ident, Size: size, Order: order,
				Text: l.src[start:l.pos],
			}, true, nil
		}
		name := l.readTrailingName()
		return Token{
			Kind: Atom, Pos: start, Type: strings.ToLower(ident), Size: size,
			Name: name, Order: order, Text: l.src[start:l.pos],
		}, true, nil

	case l.peek() == '{':
		l.pos++
		return Token{Kind: StructOpen, Pos: start, Name: ident, Order: order, Text: l.src[start:l.pos]}, true, nil

	default:
		// Bare type, optionally followed by a trailing name.
		name := l.readTrailingName()
		return Token{
			Kind: Atom, Pos: start, Type: strings.ToLower(ident), Name: name,
			Order: order, Text: l.src[start:l.pos],
		}, true, nil
	}
}

// readBracketed consumes a leading '[' ... ']' pair (already known present)
// and returns its trimmed contents.
func (l *Lexer) readBracketed() string {
	l.pos++ // consume '['
	start := l.pos
	depth := 1
	for !l.eof() && depth > 0 {
		switch l.peek() {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				break
			}
		}
		if depth == 0 {
			break
		}
		l.pos++
	}
	content := strings.TrimSpace(l.src[start:l.pos])
	if !l.eof() && l.peek() == ']' {
		l.pos++
	}
	return content
}

// readTrailingName consumes an optional field name following a fully-parsed
// atom body (type/extra/size), stopping at a separator, comment or '}'.
func (l *Lexer) readTrailingName() string {
	l.skipSpacesOnly()
	if l.eof() || !isIdentStart(l.peek()) {
		return ""
	}
	return l.readIdent()
}

func (l *Lexer) remainder() string {
	end := l.pos + 16
	if end > len(l.src) {
		end = len(l.src)
	}
	return l.src[l.pos:end]
}

// Tokens scans the entire source and returns all non-EOF tokens.
func Tokens(src string) ([]Token, error) {
	lex := New(src)
	var out []Token
	for {
		tok, ok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tok)
	}
}
