package bitstream

import (
	"bytes"
	"testing"
)

func TestReadBitsLSB0(t *testing.T) {
	// 0b10110010: LSB0 yields low bits first.
	r := NewReader(bytes.NewReader([]byte{0xB2}), LSB0)
	v, err := r.ReadBits(4)
	if err != nil || v != 0x2 {
		t.Fatalf("ReadBits(4) = %d, %v; want 2", v, err)
	}
	v, err = r.ReadBits(4)
	if err != nil || v != 0xB {
		t.Fatalf("ReadBits(4) = %d, %v; want 11", v, err)
	}
}

func TestReadBitsMSB0(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xB2}), MSB0)
	v, err := r.ReadBits(4)
	if err != nil || v != 0xB {
		t.Fatalf("ReadBits(4) = %d, %v; want 11", v, err)
	}
	v, err = r.ReadBits(4)
	if err != nil || v != 0x2 {
		t.Fatalf("ReadBits(4) = %d, %v; want 2", v, err)
	}
}

func TestCounterAdvancesOnlyOnFullByteConsumption(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xFF, 0xFF}), LSB0)
	if _, err := r.ReadBits(4); err != nil {
		t.Fatal(err)
	}
	if r.Counter() != 0 {
		t.Fatalf("Counter() = %d after partial byte, want 0", r.Counter())
	}
	if _, err := r.ReadBits(4); err != nil {
		t.Fatal(err)
	}
	if r.Counter() != 1 {
		t.Fatalf("Counter() = %d after full byte, want 1", r.Counter())
	}
}

func TestAlignToDiscardsPartialByte(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xFF, 0x05}), LSB0)
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	if err := r.AlignTo(1); err != nil {
		t.Fatal(err)
	}
	if r.Counter() != 1 {
		t.Fatalf("Counter() = %d after align, want 1", r.Counter())
	}
	b, err := r.ReadByte()
	if err != nil || b != 0x05 {
		t.Fatalf("ReadByte() = %d, %v; want 5", b, err)
	}
}

func TestHasAvailableDataAndWholeStreamArray(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3}), LSB0)
	if !r.HasAvailableData() {
		t.Fatal("expected data available")
	}
	got, err := r.ReadByteArray(-1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("ReadByteArray(-1) = %v, want [1 2 3]", got)
	}
	if r.HasAvailableData() {
		t.Fatal("expected no data available at end of stream")
	}
}

func TestResetCounterAlignsFirst(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xFF, 0xAA}), LSB0)
	if _, err := r.ReadBits(2); err != nil {
		t.Fatal(err)
	}
	r.ResetCounter()
	if r.Counter() != 0 {
		t.Fatalf("Counter() = %d after reset, want 0", r.Counter())
	}
	b, err := r.ReadByte()
	if err != nil || b != 0xAA {
		t.Fatalf("ReadByte() = %x, %v; want 0xAA (partial first byte discarded)", b, err)
	}
}

func TestReadIntBigAndLittleEndian(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00, 0x00, 0x01, 0x00}), LSB0)
	v, err := r.ReadInt(BigEndian)
	if err != nil || v != 256 {
		t.Fatalf("ReadInt(BigEndian) = %d, %v; want 256", v, err)
	}

	r = NewReader(bytes.NewReader([]byte{0x00, 0x01, 0x00, 0x00}), LSB0)
	v, err = r.ReadInt(LittleEndian)
	if err != nil || v != 256 {
		t.Fatalf("ReadInt(LittleEndian) = %d, %v; want 256", v, err)
	}
}

func TestSkipBytesShortReadIsEndOfStream(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}), LSB0)
	if err := r.SkipBytes(5); err == nil {
		t.Fatal("expected end-of-stream error")
	}
}
