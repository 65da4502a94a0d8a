package token

import "testing"

func scanOne(t *testing.T, src string) Token {
	t.Helper()
	toks, err := Tokens(src)
	if err != nil {
		t.Fatalf("Tokens(%q): %v", src, err)
	}
	if len(toks) != 1 {
		t.Fatalf("Tokens(%q) = %d tokens, want 1: %#v", src, len(toks), toks)
	}
	return toks[0]
}

func TestBareAtom(t *testing.T) {
	tok := scanOne(t, "ubyte n;")
	if tok.Kind != Atom || tok.Type != "ubyte" || tok.Name != "n" {
		t.Fatalf("got %#v", tok)
	}
}

func TestBracketedArrayAtom(t *testing.T) {
	tok := scanOne(t, "ubyte[n] x;")
	if tok.Kind != Atom || tok.Type != "ubyte" || tok.Size != "n" || tok.Name != "x" {
		t.Fatalf("got %#v", tok)
	}
}

func TestColonExtraAtom(t *testing.T) {
	// Whitespace terminates a colon-form extra expression; the field name
	// follows as a separate identifier.
	tok := scanOne(t, "bit:3 flags;")
	if tok.Kind != Atom || tok.Type != "bit" || tok.Extra != "3" || tok.Name != "flags" {
		t.Fatalf("got %#v", tok)
	}
}

func TestColonExtraWithoutName(t *testing.T) {
	tok := scanOne(t, "align:4;")
	if tok.Kind != Atom || tok.Type != "align" || tok.Extra != "4" || tok.Name != "" {
		t.Fatalf("got %#v", tok)
	}
}

func TestStructOpenNamedAndAnonymous(t *testing.T) {
	toks, err := Tokens("entry[n] { }")
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if len(toks) != 2 || toks[0].Kind != StructOpen || toks[0].Name != "entry" || toks[0].Size != "n" {
		t.Fatalf("got %#v", toks)
	}
	if toks[1].Kind != StructClose {
		t.Fatalf("got %#v", toks[1])
	}

	toks, err = Tokens("{ }")
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if len(toks) != 2 || toks[0].Kind != StructOpen || toks[0].Name != "" {
		t.Fatalf("anonymous struct open: got %#v", toks)
	}
}

func TestByteOrderPrefix(t *testing.T) {
	tok := scanOne(t, "<int x;")
	if tok.Order != OrderLittle {
		t.Fatalf("got Order=%v, want OrderLittle", tok.Order)
	}
	tok = scanOne(t, ">int x;")
	if tok.Order != OrderBig {
		t.Fatalf("got Order=%v, want OrderBig", tok.Order)
	}
}

func TestResetDoubleDollarIdent(t *testing.T) {
	tok := scanOne(t, "reset$$;")
	if tok.Type != "reset$$" {
		t.Fatalf("got Type=%q, want \"reset$$\"", tok.Type)
	}
}

func TestLineCommentToken(t *testing.T) {
	toks, err := Tokens("// a note\nubyte n;")
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if len(toks) != 2 || toks[0].Kind != Comment || toks[0].Text != "// a note" {
		t.Fatalf("got %#v", toks)
	}
}

func TestWholeStreamSentinelSize(t *testing.T) {
	tok := scanOne(t, "ubyte[_] rest;")
	if tok.Size != "_" {
		t.Fatalf("got Size=%q, want \"_\"", tok.Size)
	}
}

func TestUnexpectedCharacterError(t *testing.T) {
	if _, err := Tokens("@@@"); err == nil {
		t.Fatal("expected tokenization error for '@'")
	}
}
