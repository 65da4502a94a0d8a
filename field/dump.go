package field

import (
	"fmt"
	"io"
	"strings"
)

// DebugDump writes a human-readable tree of s to w, one field per line, in
// the manner of HewlettPackard-structex's Buffer.DebugDump: plain
// fmt.Fprintf formatting meant for a developer's terminal, not a documented
// output format.
func (s *Struct) DebugDump(w io.Writer) {
	dumpField(w, s, 0)
}

func dumpField(w io.Writer, f Field, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := f.(type) {
	case *Struct:
		fmt.Fprintf(w, "%s%s {\n", indent, label(v.FieldName))
		for _, c := range v.Children {
			dumpField(w, c, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", indent)
	case *StructArray:
		fmt.Fprintf(w, "%s%s [%d] {\n", indent, v.FieldName, len(v.Elements))
		for i, e := range v.Elements {
			fmt.Fprintf(w, "%s  [%d]:\n", indent, i)
			dumpField(w, e, depth+2)
		}
		fmt.Fprintf(w, "%s}\n", indent)
	case *Scalar:
		fmt.Fprintf(w, "%s%s (%s) = %s\n", indent, v.FieldName, v.ValKind, scalarText(v))
	case *ScalarArray:
		fmt.Fprintf(w, "%s%s (%s[%d]) = %v\n", indent, v.FieldName, v.ValKind, v.Len(), arrayText(v))
	}
}

func label(name string) string {
	if name == "" {
		return "<root>"
	}
	return name
}

func scalarText(s *Scalar) string {
	switch s.ValKind {
	case KindBool:
		return fmt.Sprintf("%t", s.BoolVal)
	case KindCustom, KindVar:
		return fmt.Sprintf("%x", s.RawVal)
	default:
		return fmt.Sprintf("%d", s.IntVal)
	}
}

func arrayText(a *ScalarArray) interface{} {
	if a.ValKind == KindBool {
		return a.Bools
	}
	return a.Values
}
