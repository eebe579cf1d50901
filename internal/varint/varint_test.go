package varint

import (
	"encoding/binary"
	"testing"
)

// encodeSizeValue builds a synthetic bch_inode value with the given
// nr_fields, new_varint set, and a chain of 9 varints: eight single-byte
// "absent" fields (varint byte 0x01, length 1) followed by a final 9-byte
// varint (byte 0x00, length 9) whose trailing 8 bytes, shifted per the
// table, decode back to size.
func encodeSizeValue(size uint64, nrFields int) []byte {
	value := make([]byte, inodeFieldsOffset)
	biFlags := newVarintFlag | uint32(nrFields)<<24
	binary.LittleEndian.PutUint32(value[biFlagsOffset:biFlagsOffset+4], biFlags)

	for i := 0; i < 8; i++ {
		value = append(value, 0x01)
	}
	// Final varint: byte 0x00 signals length 9 (8 trailing zero bits),
	// followed by 8 bytes that hold the value whole (shift[8]==0).
	value = append(value, 0x00)
	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], size)
	value = append(value, tail[:]...)
	return value
}

func TestDecodeInodeSizeRoundTrip(t *testing.T) {
	for _, size := range []uint64{0, 1, 4096, 1 << 32, ^uint64(0)} {
		value := encodeSizeValue(size, 5)
		got, err := DecodeInodeSize(value)
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		if got != size {
			t.Errorf("size %d: got %d", size, got)
		}
	}
}

func TestDecodeInodeSizeFewerThanFiveFields(t *testing.T) {
	value := make([]byte, inodeFieldsOffset)
	biFlags := newVarintFlag | uint32(3)<<24
	binary.LittleEndian.PutUint32(value[biFlagsOffset:biFlagsOffset+4], biFlags)

	got, err := DecodeInodeSize(value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected size 0 for nr_fields<5, got %d", got)
	}
}

func TestDecodeInodeSizeRejectsOldEncoding(t *testing.T) {
	value := make([]byte, inodeFieldsOffset)
	biFlags := uint32(5) << 24 // new_varint bit clear
	binary.LittleEndian.PutUint32(value[biFlagsOffset:biFlagsOffset+4], biFlags)

	if _, err := DecodeInodeSize(value); err != ErrUnsupportedInodeEncoding {
		t.Fatalf("expected ErrUnsupportedInodeEncoding, got %v", err)
	}
}

func TestDecodeInodeSizeTruncated(t *testing.T) {
	if _, err := DecodeInodeSize(make([]byte, inodeFieldsOffset-1)); err != ErrTruncatedInode {
		t.Fatalf("expected ErrTruncatedInode for short header, got %v", err)
	}

	value := encodeSizeValue(123, 5)
	if _, err := DecodeInodeSize(value[:len(value)-4]); err != ErrTruncatedInode {
		t.Fatalf("expected ErrTruncatedInode for truncated varint chain, got %v", err)
	}
}

func TestFieldLen(t *testing.T) {
	cases := []struct {
		b    byte
		want int
	}{
		{0x01, 1},
		{0x02, 2},
		{0x04, 3},
		{0x08, 4},
		{0x80, 8},
		{0x00, 9},
	}
	for _, c := range cases {
		if got := fieldLen(c.b); got != c.want {
			t.Errorf("fieldLen(%#02x): got %d, want %d", c.b, got, c.want)
		}
	}
}
