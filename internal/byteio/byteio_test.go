package byteio

import "testing"

func TestViewFieldReads(t *testing.T) {
	data := []byte{
		0x01,
		0x02, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	v := NewView(data)

	b, err := v.U8(0)
	if err != nil || b != 0x01 {
		t.Fatalf("U8: got (%d, %v)", b, err)
	}
	u16, err := v.U16(1)
	if err != nil || u16 != 2 {
		t.Fatalf("U16: got (%d, %v)", u16, err)
	}
	u32, err := v.U32(3)
	if err != nil || u32 != 3 {
		t.Fatalf("U32: got (%d, %v)", u32, err)
	}
	u64, err := v.U64(7)
	if err != nil || u64 != 4 {
		t.Fatalf("U64: got (%d, %v)", u64, err)
	}
}

func TestViewSliceOutOfRange(t *testing.T) {
	v := NewView([]byte{1, 2, 3})
	if _, err := v.Slice(2, 5); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := v.Slice(-1, 1); err == nil {
		t.Fatal("expected out-of-range error for negative offset")
	}
}

func TestUintLEWidths(t *testing.T) {
	data := []byte{0xAB, 0xCD, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	v := NewView(data)

	if got, err := v.UintLE(0, 0); err != nil || got != 0 {
		t.Fatalf("width 0: got (%d, %v)", got, err)
	}
	if got, err := v.UintLE(0, 1); err != nil || got != 0xAB {
		t.Fatalf("width 1: got (%#x, %v)", got, err)
	}
	if got, err := v.UintLE(0, 2); err != nil || got != 0xCDAB {
		t.Fatalf("width 2: got (%#x, %v)", got, err)
	}
	if _, err := v.UintLE(0, 3); err == nil {
		t.Fatal("expected error for unsupported width 3")
	}
}

func TestPackExtract(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33, 0x44}
	got, err := PackExtract(data, 3, 2)
	if err != nil {
		t.Fatalf("PackExtract: %v", err)
	}
	if want := uint64(0x3322); got != want {
		t.Fatalf("PackExtract: got %#x, want %#x", got, want)
	}
	if got, err := PackExtract(data, 3, 0); err != nil || got != 0 {
		t.Fatalf("PackExtract width 0: got (%d, %v)", got, err)
	}
	if _, err := PackExtract(data, 1, 4); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestBitAndBits(t *testing.T) {
	x := uint64(0b1011_0100)
	if !Bit(x, 2) {
		t.Fatal("bit 2 should be set")
	}
	if Bit(x, 0) {
		t.Fatal("bit 0 should be clear")
	}
	if got := Bits(x, 4, 4); got != 0b1011 {
		t.Fatalf("Bits(4,4): got %#b", got)
	}
	if got := Bits(x, 0, 64); got != x {
		t.Fatalf("Bits with n>=64 should return full shifted value: got %#x", got)
	}
}
