package runtime

import "github.com/binschema/bbp/internal/bitstream"

// ValueProvider resolves a "$name" external reference during expression
// evaluation, mapping a name to its caller-supplied integer value.
type ValueProvider interface {
	Value(name string) (int32, bool)
}

// VarHandler reads one VAR-typed value directly from the bit stream. extra
// is the field's parsed extra-data value; hasExtra is false when the schema
// supplied none. Called once per element — the runtime handles repetition
// for arrays and whole-stream arrays, the same way bitstream.Reader's
// ReadByteArray wraps ReadByte.
type VarHandler interface {
	ReadVar(src *bitstream.Reader, order bitstream.ByteOrder, name string, extra int32, hasExtra bool) ([]byte, error)
}

// CustomTypeProcessor recognises externally-defined type names and reads
// their values, one element at a time, the same way VarHandler does.
type CustomTypeProcessor interface {
	Recognizes(typeName string) bool
	ReadCustom(src *bitstream.Reader, order bitstream.ByteOrder, typeName, name string, extra int32, hasExtra bool) ([]byte, error)
}
