package bytecode

import "testing"

func TestPackedIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 0x7F, 0x80, 0xFF, 0x1234, 0xFFFF, 0x10000, 1 << 30, -1, -128}
	for _, v := range cases {
		buf := AppendPackedInt(nil, v)
		pos := 0
		got, err := ReadPackedInt(buf, &pos)
		if err != nil {
			t.Fatalf("ReadPackedInt(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round-trip %d -> %x -> %d", v, buf, got)
		}
		if pos != len(buf) {
			t.Errorf("value %d: pos %d after read, want %d (full buffer)", v, pos, len(buf))
		}
	}
}

func TestPackedIntWidths(t *testing.T) {
	if n := len(AppendPackedInt(nil, 0x7F)); n != 1 {
		t.Errorf("0x7F encoded in %d bytes, want 1", n)
	}
	if n := len(AppendPackedInt(nil, 0x80)); n != 3 {
		t.Errorf("0x80 encoded in %d bytes, want 3", n)
	}
	if n := len(AppendPackedInt(nil, 0x10000)); n != 5 {
		t.Errorf("0x10000 encoded in %d bytes, want 5", n)
	}
}

func TestReadPackedIntTruncated(t *testing.T) {
	pos := 0
	if _, err := ReadPackedInt([]byte{0x80, 0x01}, &pos); err == nil {
		t.Fatal("expected error reading truncated 16-bit packed int")
	}
	pos = 0
	if _, err := ReadPackedInt(nil, &pos); err == nil {
		t.Fatal("expected error reading packed int from empty buffer")
	}
}
