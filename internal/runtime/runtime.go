// Package runtime interprets compiled bytecode against a bit stream,
// producing a field.Struct tree. The recursive parseStruct threads three
// cursors — bytecode position, named-field index, and length-expression
// index — through a *cursors value passed by reference, since each
// recursion frame needs to both read and advance them.
package runtime

import (
	"fmt"
	"io"

	"github.com/binschema/bbp/bbperr"
	"github.com/binschema/bbp/internal/bitstream"
	"github.com/binschema/bbp/internal/bytecode"
	"github.com/binschema/bbp/internal/compiler"
	"github.com/binschema/bbp/field"
)

// scalarLength marks an instruction with no array: a single value.
const scalarLength = -2

// wholeStreamLength marks the "_" sentinel: consume until end-of-stream.
const wholeStreamLength = -1

// cursors is the mutable per-parse recursion state threaded by pointer
// through every parseStruct call and reset/restored around struct-array
// iterations.
type cursors struct {
	pos     int
	nameIdx int
	exprIdx int
}

// Config holds the optional external collaborators and bit-order choice for
// one parse, assembled by the root package from its ParseOptions.
type Config struct {
	BitOrder      bitstream.BitOrder
	ValueProvider ValueProvider
	VarHandler    VarHandler
	CustomTypes   CustomTypeProcessor
}

// Parser executes one compiled Program against one input stream.
type Parser struct {
	prog *compiler.Program
	cfg  Config
	r    *bitstream.Reader
	env  *env
}

// NewParser binds a compiled Program to a parse configuration.
func NewParser(prog *compiler.Program, cfg Config) *Parser {
	return &Parser{prog: prog, cfg: cfg}
}

// Parse reads src to completion and returns the root field tree.
func (p *Parser) Parse(src io.Reader) (*field.Struct, error) {
	p.r = bitstream.NewReader(src, p.cfg.BitOrder)
	p.env = newEnv(p.prog.Names, p.cfg.ValueProvider, p.r)

	cur := &cursors{}
	children, err := p.parseStruct(cur, true)
	if err != nil {
		return nil, err
	}
	return &field.Struct{FieldName: "", FieldPath: "", Children: children}, nil
}

// parseStruct interprets instructions starting at cur.pos until it consumes
// a matching STRUCT_END (nested call) or the bytecode is exhausted (the
// implicit root "struct" has no STRUCT_START/STRUCT_END of its own).
// nonskip=false discards values and never touches the bit stream — the
// skip-parse used to advance past a zero-iteration struct array.
func (p *Parser) parseStruct(cur *cursors, nonskip bool) ([]field.Field, error) {
	var children []field.Field

	for cur.pos < len(p.prog.Code) {
		instrOffset := cur.pos
		first := p.prog.Code[cur.pos]
		op, flags := bytecode.DecodeFirstByte(first)
		cur.pos++

		var ext byte
		if flags&bytecode.FlagWide != 0 {
			if cur.pos >= len(p.prog.Code) {
				return nil, bbperr.NewInternal(instrOffset, "truncated wide instruction")
			}
			ext = p.prog.Code[cur.pos]
			cur.pos++
		}

		if op == bytecode.OpStructEnd {
			if _, err := bytecode.ReadPackedInt(p.prog.Code, &cur.pos); err != nil {
				return nil, err
			}
			return children, nil
		}

		name, path := "", ""
		if flags&bytecode.FlagNamed != 0 {
			if cur.nameIdx >= len(p.prog.Names) {
				return nil, bbperr.NewInternal(instrOffset, "named-field index exhausted")
			}
			nf := p.prog.Names[cur.nameIdx]
			name, path = nf.Leaf, nf.Path
			cur.nameIdx++
		}

		order := bitstream.BigEndian
		if flags&bytecode.FlagLittleEndian != 0 {
			order = bitstream.LittleEndian
		}

		f, err := p.dispatch(cur, instrOffset, op, flags, ext, name, path, order, nonskip)
		if err != nil {
			return nil, err
		}
		if nonskip && f != nil {
			children = append(children, f)
		}
	}
	return children, nil
}

// dispatch decodes one instruction's length, handles its extra-data where
// applicable, and executes it, returning the field it produced (nil for
// ALIGN/SKIP/RESET_COUNTER, or always in skip mode).
func (p *Parser) dispatch(cur *cursors, instrOffset int, op bytecode.Op, flags, ext byte, name, path string, order bitstream.ByteOrder, nonskip bool) (field.Field, error) {
	switch op {
	case bytecode.OpAlign:
		modulus, _, err := p.extraValue(cur, ext, nonskip)
		if err != nil {
			return nil, err
		}
		if nonskip {
			if err := p.r.AlignTo(int(modulus)); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case bytecode.OpSkip:
		n, _, err := p.extraValue(cur, ext, nonskip)
		if err != nil {
			return nil, err
		}
		if nonskip {
			if err := p.r.SkipBytes(int(n)); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case bytecode.OpResetCounter:
		if nonskip {
			p.r.ResetCounter()
		}
		return nil, nil

	case bytecode.OpStructStart:
		return p.dispatchStruct(cur, flags, ext, name, path, nonskip)

	case bytecode.OpVar:
		return p.dispatchVar(cur, flags, ext, name, path, order, nonskip)

	case bytecode.OpCustomType:
		return p.dispatchCustom(cur, flags, ext, name, path, order, nonskip)

	default:
		return p.dispatchScalar(cur, instrOffset, op, flags, ext, name, path, order, nonskip)
	}
}

// length decodes an instruction's array-length operand. In skip mode it
// advances the bytecode/expression cursors correctly without evaluating.
func (p *Parser) length(cur *cursors, flags, ext byte, path string, nonskip bool) (int, error) {
	hasArray := flags&bytecode.FlagArray != 0
	hasExprWS := ext&bytecode.ExtArrayExprOrWholeStream != 0

	switch {
	case hasArray && !hasExprWS:
		v, err := bytecode.ReadPackedInt(p.prog.Code, &cur.pos)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, bbperr.NewParsing(cur.pos, path, "array length %d is negative", v)
		}
		return int(v), nil
	case !hasArray && hasExprWS:
		return wholeStreamLength, nil
	case hasArray && hasExprWS:
		if cur.exprIdx >= len(p.prog.Exprs) {
			return 0, bbperr.NewInternal(cur.pos, "length-expression index exhausted")
		}
		ex := p.prog.Exprs[cur.exprIdx].Expr
		cur.exprIdx++
		if !nonskip {
			return 0, nil
		}
		v, err := ex.Eval(p.env)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, bbperr.NewParsing(cur.pos, path, "computed array length %d is negative", v)
		}
		return int(v), nil
	default:
		return scalarLength, nil
	}
}

// extraValue decodes the BIT/ALIGN/SKIP/VAR/CUSTOM_TYPE extra-data slot.
func (p *Parser) extraValue(cur *cursors, ext byte, nonskip bool) (int32, bool, error) {
	switch {
	case ext&bytecode.ExtExtraIsExpression != 0:
		if cur.exprIdx >= len(p.prog.Exprs) {
			return 0, false, bbperr.NewInternal(cur.pos, "length-expression index exhausted")
		}
		ex := p.prog.Exprs[cur.exprIdx].Expr
		cur.exprIdx++
		if !nonskip {
			return 0, true, nil
		}
		v, err := ex.Eval(p.env)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	case ext&bytecode.ExtNoExtra != 0:
		return 0, false, nil
	default:
		v, err := bytecode.ReadPackedInt(p.prog.Code, &cur.pos)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	}
}

func (p *Parser) dispatchScalar(cur *cursors, instrOffset int, op bytecode.Op, flags, ext byte, name, path string, order bitstream.ByteOrder, nonskip bool) (field.Field, error) {
	// Operand order on the wire matches compiler emission: the array-length
	// operand (if any) precedes the extra-data operand (BIT's width).
	n, err := p.length(cur, flags, ext, path, nonskip)
	if err != nil {
		return nil, err
	}

	var width int
	if op == bytecode.OpBit {
		w, _, err := p.extraValue(cur, ext, nonskip)
		if err != nil {
			return nil, err
		}
		if nonskip && (w < 1 || w > 8) {
			return nil, bbperr.NewParsing(instrOffset, path, "bit width %d out of range 1..8", w)
		}
		width = int(w)
	}

	if !nonskip {
		return nil, nil
	}

	kind := scalarKindFor(op)

	if n == scalarLength {
		v, boolv, err := p.readOneScalar(op, width, order)
		if err != nil {
			return nil, bbperr.NewEndOfStream(instrOffset, path, "%v", err)
		}
		sc := &field.Scalar{FieldName: name, FieldPath: path, ValKind: kind, IntVal: v, BoolVal: boolv}
		if name != "" && kind != field.KindBool {
			p.env.record(path, int32(v))
		}
		return sc, nil
	}

	arr, err := p.readScalarArray(op, width, order, n)
	if err != nil {
		return nil, bbperr.NewEndOfStream(instrOffset, path, "%v", err)
	}
	return &field.ScalarArray{FieldName: name, FieldPath: path, ValKind: kind, Values: arr.values, Bools: arr.bools}, nil
}

func scalarKindFor(op bytecode.Op) field.Kind {
	switch op {
	case bytecode.OpBit:
		return field.KindBit
	case bytecode.OpBool:
		return field.KindBool
	case bytecode.OpByte:
		return field.KindByte
	case bytecode.OpUByte:
		return field.KindUByte
	case bytecode.OpShort:
		return field.KindShort
	case bytecode.OpUShort:
		return field.KindUShort
	case bytecode.OpInt:
		return field.KindInt
	case bytecode.OpLong:
		return field.KindLong
	default:
		return field.KindInt
	}
}

func (p *Parser) readOneScalar(op bytecode.Op, width int, order bitstream.ByteOrder) (int64, bool, error) {
	switch op {
	case bytecode.OpBit:
		v, err := p.r.ReadBits(width)
		if err != nil {
			return 0, false, err
		}
		if v == -1 {
			return 0, false, io.ErrUnexpectedEOF
		}
		return int64(v), false, nil
	case bytecode.OpBool:
		b, err := p.r.ReadByte()
		if err != nil {
			return 0, false, err
		}
		return 0, b != 0, nil
	case bytecode.OpByte:
		b, err := p.r.ReadByte()
		return int64(int8(b)), false, err
	case bytecode.OpUByte:
		b, err := p.r.ReadByte()
		return int64(b), false, err
	case bytecode.OpShort:
		v, err := p.r.ReadUnsignedShort(order)
		return int64(int16(v)), false, err
	case bytecode.OpUShort:
		v, err := p.r.ReadUnsignedShort(order)
		return int64(v), false, err
	case bytecode.OpInt:
		v, err := p.r.ReadInt(order)
		return int64(v), false, err
	case bytecode.OpLong:
		v, err := p.r.ReadLong(order)
		return v, false, err
	default:
		return 0, false, bbperr.NewInternal(-1, "unreachable scalar opcode %s", op)
	}
}

type scalarArrayData struct {
	values []int64
	bools  []bool
}

func (p *Parser) readScalarArray(op bytecode.Op, width int, order bitstream.ByteOrder, n int) (scalarArrayData, error) {
	switch op {
	case bytecode.OpBit:
		bits, err := p.r.ReadBitsArray(n, width)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(bits))
		for i, b := range bits {
			out[i] = int64(b)
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpBool:
		raw, err := p.r.ReadByteArray(n)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]bool, len(raw))
		for i, b := range raw {
			out[i] = b != 0
		}
		return scalarArrayData{bools: out}, nil
	case bytecode.OpByte:
		raw, err := p.r.ReadByteArray(n)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(raw))
		for i, b := range raw {
			out[i] = int64(int8(b))
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpUByte:
		raw, err := p.r.ReadByteArray(n)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(raw))
		for i, b := range raw {
			out[i] = int64(b)
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpShort:
		raw, err := p.r.ReadShortArray(n, order)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(raw))
		for i, v := range raw {
			out[i] = int64(int16(v))
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpUShort:
		raw, err := p.r.ReadShortArray(n, order)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(raw))
		for i, v := range raw {
			out[i] = int64(v)
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpInt:
		raw, err := p.r.ReadIntArray(n, order)
		if err != nil {
			return scalarArrayData{}, err
		}
		out := make([]int64, len(raw))
		for i, v := range raw {
			out[i] = int64(v)
		}
		return scalarArrayData{values: out}, nil
	case bytecode.OpLong:
		raw, err := p.r.ReadLongArray(n, order)
		if err != nil {
			return scalarArrayData{}, err
		}
		return scalarArrayData{values: raw}, nil
	default:
		return scalarArrayData{}, bbperr.NewInternal(-1, "unreachable scalar-array opcode %s", op)
	}
}

func (p *Parser) dispatchVar(cur *cursors, flags, ext byte, name, path string, order bitstream.ByteOrder, nonskip bool) (field.Field, error) {
	n, err := p.length(cur, flags, ext, path, nonskip)
	if err != nil {
		return nil, err
	}
	extra, hasExtra, err := p.extraValue(cur, ext, nonskip)
	if err != nil {
		return nil, err
	}
	if !nonskip {
		return nil, nil
	}
	if p.cfg.VarHandler == nil {
		return nil, bbperr.NewParsing(cur.pos, path, "no VAR handler registered")
	}
	return p.readExternal(func() ([]byte, error) {
		return p.cfg.VarHandler.ReadVar(p.r, order, name, extra, hasExtra)
	}, n, name, path, field.KindVar)
}

func (p *Parser) dispatchCustom(cur *cursors, flags, ext byte, name, path string, order bitstream.ByteOrder, nonskip bool) (field.Field, error) {
	n, err := p.length(cur, flags, ext, path, nonskip)
	if err != nil {
		return nil, err
	}
	extra, hasExtra, err := p.extraValue(cur, ext, nonskip)
	if err != nil {
		return nil, err
	}
	idx, err := bytecode.ReadPackedInt(p.prog.Code, &cur.pos)
	if err != nil {
		return nil, err
	}
	if !nonskip {
		return nil, nil
	}
	if int(idx) < 0 || int(idx) >= len(p.prog.Customs) {
		return nil, bbperr.NewInternal(cur.pos, "custom-type descriptor index %d out of range", idx)
	}
	desc := p.prog.Customs[idx]
	if p.cfg.CustomTypes == nil {
		return nil, bbperr.NewParsing(cur.pos, path, "no custom-type processor registered for %q", desc.TypeName)
	}
	return p.readExternal(func() ([]byte, error) {
		return p.cfg.CustomTypes.ReadCustom(p.r, order, desc.TypeName, name, extra, hasExtra)
	}, n, name, path, field.KindCustom)
}

// readExternal drives a VAR/CUSTOM_TYPE handler once per array element (or
// once for a scalar, or repeatedly until end-of-stream for a whole-stream
// array), the same repetition pattern bitstream.Reader's own array readers
// use around a single-value read.
func (p *Parser) readExternal(read func() ([]byte, error), n int, name, path string, kind field.Kind) (field.Field, error) {
	if n == scalarLength {
		raw, err := read()
		if err != nil {
			return nil, bbperr.NewParsing(-1, path, "%v", err)
		}
		return &field.Scalar{FieldName: name, FieldPath: path, ValKind: kind, RawVal: raw}, nil
	}

	var elems [][]byte
	if n == wholeStreamLength {
		for p.r.HasAvailableData() {
			raw, err := read()
			if err != nil {
				return nil, bbperr.NewParsing(-1, path, "%v", err)
			}
			elems = append(elems, raw)
		}
	} else {
		for i := 0; i < n; i++ {
			raw, err := read()
			if err != nil {
				return nil, bbperr.NewParsing(-1, path, "%v", err)
			}
			elems = append(elems, raw)
		}
	}
	// A homogeneous array of opaque payloads has no single backing numeric
	// buffer, so each element is wrapped in its own one-field struct rather
	// than forced into ScalarArray's int64/bool backing store.
	out := &field.StructArray{FieldName: name, FieldPath: path}
	for i, raw := range elems {
		out.Elements = append(out.Elements, &field.Struct{
			FieldName: name,
			FieldPath: fmt.Sprintf("%s[%d]", path, i),
			Children: []field.Field{
				&field.Scalar{FieldName: name, FieldPath: fmt.Sprintf("%s[%d]", path, i), ValKind: kind, RawVal: raw},
			},
		})
	}
	return out, nil
}

func (p *Parser) dispatchStruct(cur *cursors, flags, ext byte, name, path string, nonskip bool) (field.Field, error) {
	n, err := p.length(cur, flags, ext, path, nonskip)
	if err != nil {
		return nil, err
	}
	bodyStart := cur.pos

	if n == scalarLength {
		kids, err := p.parseStruct(cur, nonskip)
		if err != nil {
			return nil, err
		}
		if !nonskip {
			return nil, nil
		}
		return &field.Struct{FieldName: name, FieldPath: path, Children: kids}, nil
	}

	openName, openExpr := cur.nameIdx, cur.exprIdx

	// In skip mode the body is walked exactly once regardless of the
	// element count: every iteration resets to the same bodyStart and
	// never evaluates an expression, so repeating it would only
	// recompute an identical cursor advance.
	if !nonskip {
		if _, err := p.parseStruct(cur, false); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var elements []*field.Struct
	if n == wholeStreamLength {
		for p.r.HasAvailableData() {
			cur.pos, cur.nameIdx, cur.exprIdx = bodyStart, openName, openExpr
			kids, err := p.parseStruct(cur, true)
			if err != nil {
				return nil, err
			}
			elements = append(elements, &field.Struct{FieldName: name, FieldPath: fmt.Sprintf("%s[%d]", path, len(elements)), Children: kids})
		}
	} else {
		for i := 0; i < n; i++ {
			cur.pos, cur.nameIdx, cur.exprIdx = bodyStart, openName, openExpr
			kids, err := p.parseStruct(cur, true)
			if err != nil {
				return nil, err
			}
			elements = append(elements, &field.Struct{FieldName: name, FieldPath: fmt.Sprintf("%s[%d]", path, i), Children: kids})
		}
	}

	if len(elements) == 0 {
		// Zero iterations still must advance past the body to consume its
		// STRUCT_END back-pointer before the caller's cursor resumes past it.
		cur.pos, cur.nameIdx, cur.exprIdx = bodyStart, openName, openExpr
		if _, err := p.parseStruct(cur, false); err != nil {
			return nil, err
		}
	}

	return &field.StructArray{FieldName: name, FieldPath: path, Elements: elements}, nil
}
