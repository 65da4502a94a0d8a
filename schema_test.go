package bbp_test

import (
	"bytes"
	"testing"

	"github.com/binschema/bbp"
	"github.com/binschema/bbp/field"
)

func mustCompile(t *testing.T, src string) *bbp.Schema {
	t.Helper()
	s, err := bbp.Compile(src, nil)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return s
}

// Covers an expression-sized array inside a nested anonymous struct followed
// by a whole-stream array at the top level — exercising named-value
// recording, scope-restricted name resolution, and end-of-input detection
// together.
func TestParseNestedAndWholeStream(t *testing.T) {
	schema := mustCompile(t, `
ubyte n;
{
	ubyte[n] x;
}
ubyte[_] rest;
`)

	input := []byte{2, 10, 20, 99, 100, 101}
	root, err := schema.Parse(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 top-level fields, got %d", len(root.Children))
	}

	n, ok := root.Children[0].(*field.Scalar)
	if !ok || n.IntVal != 2 {
		t.Fatalf("field 0 = %#v, want Scalar(2)", root.Children[0])
	}

	group, ok := root.Children[1].(*field.Struct)
	if !ok || len(group.Children) != 1 {
		t.Fatalf("field 1 = %#v, want anonymous Struct with 1 child", root.Children[1])
	}
	x, ok := group.Children[0].(*field.ScalarArray)
	if !ok {
		t.Fatalf("group child = %#v, want ScalarArray", group.Children[0])
	}
	if got, _ := x.AsLongArray(); !equalInts(got, []int64{10, 20}) {
		t.Fatalf("x = %v, want [10 20]", got)
	}

	rest, ok := root.Children[2].(*field.ScalarArray)
	if !ok {
		t.Fatalf("field 2 = %#v, want ScalarArray", root.Children[2])
	}
	if got, _ := rest.AsLongArray(); !equalInts(got, []int64{99, 100, 101}) {
		t.Fatalf("rest = %v, want [99 100 101]", got)
	}
}

// Covers a fixed-count struct array, BIT fields with an explicit width, and
// ALIGN — the scalar numeric path most likely to break on an operand
// ordering mistake between array-length and extra-data.
func TestParseStructArrayAndBits(t *testing.T) {
	schema := mustCompile(t, `
ubyte count;
entry[count] {
	bit:3 flags;
	align:1;
	ubyte value;
}
`)

	// count=2; bit fields are read least-significant-bit-first (the default
	// bit order), so each 3-bit flags value sits in the low bits of its byte
	// and ALIGN discards the remaining 5 bits. entry0: flags=5, value=7;
	// entry1: flags=3, value=9.
	input := []byte{2, 5, 7, 3, 9}
	root, err := schema.Parse(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 top-level fields, got %d", len(root.Children))
	}

	entries, ok := root.Children[1].(*field.StructArray)
	if !ok || len(entries.Elements) != 2 {
		t.Fatalf("field 1 = %#v, want StructArray with 2 elements", root.Children[1])
	}

	want := []struct {
		flags int64
		value int64
	}{
		{5, 7},
		{3, 9},
	}
	for i, e := range entries.Elements {
		flagsField, ok := e.Child("flags")
		if !ok {
			t.Fatalf("entry %d missing flags", i)
		}
		fs := flagsField.(*field.Scalar)
		if v, _ := fs.AsInt(); v != want[i].flags {
			t.Errorf("entry %d flags = %d, want %d", i, v, want[i].flags)
		}
		valField, ok := e.Child("value")
		if !ok {
			t.Fatalf("entry %d missing value", i)
		}
		vs := valField.(*field.Scalar)
		if v, _ := vs.AsInt(); v != want[i].value {
			t.Errorf("entry %d value = %d, want %d", i, v, want[i].value)
		}
	}
}

// Covers a zero-length struct array: the runtime must still advance past its
// body and consume the STRUCT_END back-pointer so parsing resumes correctly
// at the following field.
func TestParseZeroLengthStructArray(t *testing.T) {
	schema := mustCompile(t, `
ubyte count;
entry[count] {
	ubyte value;
}
ubyte marker;
`)

	input := []byte{0, 42}
	root, err := schema.Parse(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 top-level fields, got %d", len(root.Children))
	}
	entries, ok := root.Children[1].(*field.StructArray)
	if !ok || len(entries.Elements) != 0 {
		t.Fatalf("field 1 = %#v, want empty StructArray", root.Children[1])
	}
	marker, ok := root.Children[2].(*field.Scalar)
	if !ok || marker.IntVal != 42 {
		t.Fatalf("field 2 = %#v, want Scalar(42)", root.Children[2])
	}
}

type constProvider map[string]int32

func (c constProvider) Value(name string) (int32, bool) {
	v, ok := c[name]
	return v, ok
}

// Covers an external "$name" reference resolved by a caller-supplied
// ValueProvider rather than read from the stream.
func TestParseExternalValue(t *testing.T) {
	schema := mustCompile(t, `ubyte[$count] payload;`)
	input := []byte{1, 2, 3}
	root, err := schema.Parse(bytes.NewReader(input), bbp.WithValueProvider(constProvider{"count": 3}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	payload, ok := root.Children[0].(*field.ScalarArray)
	if !ok {
		t.Fatalf("field 0 = %#v, want ScalarArray", root.Children[0])
	}
	if got, _ := payload.AsLongArray(); !equalInts(got, []int64{1, 2, 3}) {
		t.Fatalf("payload = %v, want [1 2 3]", got)
	}
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
