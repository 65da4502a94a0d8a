// Package field defines the typed tree produced by a parse: a tagged sum
// over scalar, scalar-array, struct and struct-array families,
// path-addressable by dotted name. No virtual dispatch is used outside the
// capability-projection methods (AsInt, AsLong, ...) — one concrete type per
// family instead of an interface hierarchy, following the same instinct as
// HewlettPackard-structex's reflect.Value-kind switch in decoder.readValue,
// just over a closed set of our own Kind values instead of reflect.Kind.
package field

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which scalar family a Field holds.
type Kind int

const (
	KindBit Kind = iota
	KindBool
	KindByte
	KindUByte
	KindShort
	KindUShort
	KindInt
	KindLong
	KindCustom
	KindVar
)

func (k Kind) String() string {
	switch k {
	case KindBit:
		return "bit"
	case KindBool:
		return "bool"
	case KindByte:
		return "byte"
	case KindUByte:
		return "ubyte"
	case KindShort:
		return "short"
	case KindUShort:
		return "ushort"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindCustom:
		return "custom"
	case KindVar:
		return "var"
	default:
		return "unknown"
	}
}

// Field is implemented by every node of the parsed tree.
type Field interface {
	Name() string
	Path() string
	isField()
}

// Scalar is a single decoded value: bit, bool, byte, ubyte, short, ushort,
// int, long, or an opaque custom/var payload.
type Scalar struct {
	FieldName string
	FieldPath string
	ValKind   Kind
	IntVal    int64
	BoolVal   bool
	RawVal    []byte // custom/var payload, when the handler returns raw bytes
}

func (s *Scalar) Name() string { return s.FieldName }
func (s *Scalar) Path() string { return s.FieldPath }
func (*Scalar) isField()       {}

// AsInt returns the stored int64 value; a long field's value is returned in
// full, not truncated to the int32 range. ok is false for bool, custom and
// var scalars.
func (s *Scalar) AsInt() (int64, bool) {
	switch s.ValKind {
	case KindBit, KindByte, KindUByte, KindShort, KindUShort, KindInt, KindLong:
		return s.IntVal, true
	default:
		return 0, false
	}
}

// AsLong is an alias for AsInt kept for symmetry with the int/long typed
// accessors a reader of the schema would expect; both scalar families share
// one backing int64, and AsLong returns exactly what AsInt returns.
func (s *Scalar) AsLong() (int64, bool) { return s.AsInt() }

// AsBool returns the decoded boolean. ok is false for non-bool scalars.
func (s *Scalar) AsBool() (bool, bool) {
	if s.ValKind != KindBool {
		return false, false
	}
	return s.BoolVal, true
}

// ScalarArray is a homogeneous array of one scalar family.
type ScalarArray struct {
	FieldName string
	FieldPath string
	ValKind   Kind
	Values    []int64
	Bools     []bool
}

func (a *ScalarArray) Name() string { return a.FieldName }
func (a *ScalarArray) Path() string { return a.FieldPath }
func (*ScalarArray) isField()       {}

// Len reports the number of elements.
func (a *ScalarArray) Len() int {
	if a.ValKind == KindBool {
		return len(a.Bools)
	}
	return len(a.Values)
}

// AsLongArray returns a defensive copy of the backing integer buffer, so the
// tree stays immutable after a parse. ok is false for bool arrays.
func (a *ScalarArray) AsLongArray() ([]int64, bool) {
	if a.ValKind == KindBool {
		return nil, false
	}
	out := make([]int64, len(a.Values))
	copy(out, a.Values)
	return out, true
}

// AsBoolArray returns a defensive copy of a bool array's backing buffer.
func (a *ScalarArray) AsBoolArray() ([]bool, bool) {
	if a.ValKind != KindBool {
		return nil, false
	}
	out := make([]bool, len(a.Bools))
	copy(out, a.Bools)
	return out, true
}

// At returns the element at index i as an int64. ok is false out of range or
// for a bool array.
func (a *ScalarArray) At(i int) (int64, bool) {
	if a.ValKind == KindBool || i < 0 || i >= len(a.Values) {
		return 0, false
	}
	return a.Values[i], true
}

// Struct is a named group of child fields. The synthetic root node has an
// empty name.
type Struct struct {
	FieldName string
	FieldPath string
	Children  []Field
}

func (s *Struct) Name() string { return s.FieldName }
func (s *Struct) Path() string { return s.FieldPath }
func (*Struct) isField()       {}

// Child returns the immediate child with the given leaf name.
func (s *Struct) Child(name string) (Field, bool) {
	for _, c := range s.Children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// StructArray is a named, homogeneous array of struct elements.
type StructArray struct {
	FieldName string
	FieldPath string
	Elements  []*Struct
}

func (a *StructArray) Name() string { return a.FieldName }
func (a *StructArray) Path() string { return a.FieldPath }
func (*StructArray) isField()       {}

// Lookup resolves a dotted path (optionally with "[i]" array indices) rooted
// at s, e.g. "header.length" or "chunks[2].crc".
func (s *Struct) Lookup(path string) (Field, error) {
	var cur Field = s
	for _, seg := range strings.Split(path, ".") {
		name, idx, hasIdx := splitIndex(seg)
		parent, ok := cur.(interface{ Child(string) (Field, bool) })
		if !ok {
			return nil, fmt.Errorf("field: %q is not a struct, cannot resolve %q", cur.Path(), seg)
		}
		next, ok := parent.Child(name)
		if !ok {
			return nil, fmt.Errorf("field: no child named %q under %q", name, cur.Path())
		}
		if hasIdx {
			switch v := next.(type) {
			case *StructArray:
				if idx < 0 || idx >= len(v.Elements) {
					return nil, fmt.Errorf("field: index %d out of range for %q (len %d)", idx, v.Path(), len(v.Elements))
				}
				next = v.Elements[idx]
			case *ScalarArray:
				val, ok := v.At(idx)
				if !ok {
					return nil, fmt.Errorf("field: index %d out of range for %q", idx, v.Path())
				}
				next = &Scalar{FieldName: v.FieldName, FieldPath: v.FieldPath, ValKind: v.ValKind, IntVal: val}
			default:
				return nil, fmt.Errorf("field: %q is not an array, cannot index", next.Path())
			}
		}
		cur = next
	}
	return cur, nil
}

func splitIndex(seg string) (name string, idx int, hasIdx bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	name = seg[:open]
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return name, n, true
}
