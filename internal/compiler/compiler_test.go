package compiler

import (
	"strings"
	"testing"

	"github.com/binschema/bbp/bbperr"
)

func compileErr(t *testing.T, src string) *bbperr.Error {
	t.Helper()
	_, err := Compile(src, nil)
	if err == nil {
		t.Fatalf("Compile(%q): expected error, got nil", src)
	}
	be, ok := err.(*bbperr.Error)
	if !ok {
		t.Fatalf("Compile(%q): error %v is not *bbperr.Error", src, err)
	}
	return be
}

func TestUnbalancedStruct(t *testing.T) {
	compileErr(t, `outer { ubyte x; `)
}

func TestUnmatchedClose(t *testing.T) {
	compileErr(t, `}`)
}

func TestDuplicateNameInSameScope(t *testing.T) {
	be := compileErr(t, `ubyte x; ubyte x;`)
	if be.Kind != bbperr.Compilation {
		t.Errorf("Kind = %v, want Compilation", be.Kind)
	}
}

func TestDuplicateNameAcrossSiblingAnonymousStructsIsRejected(t *testing.T) {
	// Anonymous structs add no path segment, so "x" in each of two sibling
	// anonymous structs gets the same dotted path "x" and is a duplicate.
	if _, err := Compile(`
{ ubyte x; }
{ ubyte x; }
`, nil); err == nil {
		t.Fatal("expected duplicate-name error, got nil")
	}
}

func TestWholeStreamRestriction(t *testing.T) {
	compileErr(t, `ubyte[_] a; ubyte b;`)
}

func TestWholeStreamAfterClosedStructIsAllowed(t *testing.T) {
	if _, err := Compile(`
ubyte n;
{
	ubyte[n] x;
}
ubyte[_] rest;
`, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOnlyOneWholeStreamArrayAllowed(t *testing.T) {
	compileErr(t, `{ ubyte[_] a; } ubyte[_] b;`)
}

func TestUnknownTypeWithoutRecognizer(t *testing.T) {
	be := compileErr(t, `widget foo;`)
	if !strings.Contains(be.Msg, "unknown type") {
		t.Errorf("message = %q, want to mention unknown type", be.Msg)
	}
}

type recognizer struct{ allow map[string]bool }

func (r recognizer) Recognizes(name string) bool { return r.allow[name] }

func TestCustomTypeRejectedByRecognizer(t *testing.T) {
	_, err := Compile(`widget foo;`, recognizer{allow: map[string]bool{"gadget": true}})
	if err == nil {
		t.Fatal("expected error for type rejected by recognizer")
	}
}

func TestCustomTypeAcceptedByRecognizer(t *testing.T) {
	prog, err := Compile(`widget foo;`, recognizer{allow: map[string]bool{"widget": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prog.Customs) != 1 || prog.Customs[0].TypeName != "widget" {
		t.Fatalf("Customs = %#v, want one descriptor for %q", prog.Customs, "widget")
	}
}

func TestAlignFieldRejectsNameAndArray(t *testing.T) {
	compileErr(t, `align:4 foo;`)
	compileErr(t, `align:4[2];`)
}

func TestBitWidthOutOfRange(t *testing.T) {
	compileErr(t, `bit:9 x;`)
	compileErr(t, `bit:0 x;`)
}

func TestNegativeArraySize(t *testing.T) {
	compileErr(t, `ubyte[-1] x;`)
}
