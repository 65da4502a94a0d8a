package bytecode

import (
	"encoding/binary"

	"github.com/binschema/bbp/bbperr"
)

// AppendPackedInt appends the packed-integer encoding of v to buf and
// returns the extended slice. Encoding:
//
//	0x00..0x7F             -> one byte, the value itself
//	fits in 16 bits         -> 0x80, high byte, low byte
//	otherwise               -> 0x81, 4 big-endian bytes
func AppendPackedInt(buf []byte, v int32) []byte {
	u := uint32(v)
	if u&0xFFFFFF80 == 0 {
		return append(buf, byte(u))
	}
	if u <= 0xFFFF {
		return append(buf, 0x80, byte(u>>8), byte(u))
	}
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], u)
	return append(buf, 0x81, tmp[0], tmp[1], tmp[2], tmp[3])
}

// ReadPackedInt decodes a packed integer from code starting at *pos, advancing
// *pos past it. The starting position is reported in any error for diagnostics.
func ReadPackedInt(code []byte, pos *int) (int32, error) {
	start := *pos
	if *pos >= len(code) {
		return 0, bbperr.NewEndOfStream(start, "", "end of bytecode reading packed int")
	}
	b0 := code[*pos]
	*pos++
	switch {
	case b0 < 0x80:
		return int32(b0), nil
	case b0 == 0x80:
		if *pos+2 > len(code) {
			return 0, bbperr.NewEndOfStream(start, "", "truncated 16-bit packed int")
		}
		v := int32(uint32(code[*pos])<<8 | uint32(code[*pos+1]))
		*pos += 2
		return v, nil
	case b0 == 0x81:
		if *pos+4 > len(code) {
			return 0, bbperr.NewEndOfStream(start, "", "truncated 32-bit packed int")
		}
		v := int32(binary.BigEndian.Uint32(code[*pos : *pos+4]))
		*pos += 4
		return v, nil
	default:
		return 0, bbperr.NewParsing(start, "", "invalid packed-int prefix 0x%02x", b0)
	}
}
