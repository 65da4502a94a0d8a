package bbp

import (
	"io"

	"github.com/binschema/bbp/internal/bitstream"
	"github.com/binschema/bbp/internal/compiler"
	"github.com/binschema/bbp/internal/runtime"
	"github.com/binschema/bbp/field"
)

// ValueProvider resolves a "$name" external reference during expression
// evaluation — e.g. a protocol version or a value supplied out-of-band by
// the caller rather than read from the stream itself.
type ValueProvider interface {
	Value(name string) (int32, bool)
}

// VarHandler reads one instance of a schema's "var" type directly from the
// bit stream. extra carries the field's parsed extra-data value, when the
// schema supplied one.
type VarHandler interface {
	ReadVar(src *bitstream.Reader, order bitstream.ByteOrder, name string, extra int32, hasExtra bool) ([]byte, error)
}

// CustomTypeProcessor recognizes externally-defined type names in a schema
// and reads their values. Recognizes is also consulted at Compile time to
// reject unknown type names early.
type CustomTypeProcessor interface {
	Recognizes(typeName string) bool
	ReadCustom(src *bitstream.Reader, order bitstream.ByteOrder, typeName, name string, extra int32, hasExtra bool) ([]byte, error)
}

// Schema is a compiled schema: immutable bytecode plus side tables, ready to
// parse any number of streams concurrently.
type Schema struct {
	prog *compiler.Program
}

// Compile compiles schema source text. recognizer, if non-nil, is consulted
// for every type name the schema uses that isn't one of the builtins (bit,
// bool, byte, ubyte, short, ushort, int, long, skip, align, var, reset$$); a nil
// recognizer makes any such name a compile error.
func Compile(source string, recognizer CustomTypeProcessor) (*Schema, error) {
	var tr compiler.TypeRecognizer
	if recognizer != nil {
		tr = recognizer
	}
	prog, err := compiler.Compile(source, tr)
	if err != nil {
		return nil, err
	}
	return &Schema{prog: prog}, nil
}

// ParseOption configures a single Parse call.
type ParseOption func(*runtime.Config)

// WithBitOrder sets the bit-consumption order within each byte. The default
// is bitstream.LSB0.
func WithBitOrder(order bitstream.BitOrder) ParseOption {
	return func(c *runtime.Config) { c.BitOrder = order }
}

// WithValueProvider registers the resolver for "$name" external references.
func WithValueProvider(p ValueProvider) ParseOption {
	return func(c *runtime.Config) { c.ValueProvider = p }
}

// WithVarHandler registers the reader for the schema's "var" type.
func WithVarHandler(h VarHandler) ParseOption {
	return func(c *runtime.Config) { c.VarHandler = h }
}

// WithCustomTypes registers the processor for custom type names. It must be
// the same (or an equivalent) processor passed to Compile, since the runtime
// re-dispatches by type name rather than by a compile-time-bound closure.
func WithCustomTypes(p CustomTypeProcessor) ParseOption {
	return func(c *runtime.Config) { c.CustomTypes = p }
}

// Parse reads src to completion against the compiled schema and returns the
// root field tree.
func (s *Schema) Parse(src io.Reader, opts ...ParseOption) (*field.Struct, error) {
	var cfg runtime.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	p := runtime.NewParser(s.prog, cfg)
	return p.Parse(src)
}
