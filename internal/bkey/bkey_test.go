package bkey

import (
	"encoding/binary"
	"testing"

	"github.com/bcachefsreader/bcachefs/internal/types"
)

func TestDecodeCurrentFormat(t *testing.T) {
	const valueLen = 8
	const keyLen = 40 + valueLen
	data := make([]byte, keyLen)
	data[0] = uint8(keyLen / types.U)
	data[1] = FormatCurrent
	data[2] = types.KeyTypeExtent
	binary.LittleEndian.PutUint32(data[4:], 7)             // version hi
	binary.LittleEndian.PutUint64(data[8:], 9)             // version lo
	binary.LittleEndian.PutUint32(data[16:], 3)            // size
	binary.LittleEndian.PutUint32(data[20:], 1)            // snapshot
	binary.LittleEndian.PutUint64(data[24:], 1000)         // offset
	binary.LittleEndian.PutUint64(data[32:], 4096)         // inode
	copy(data[40:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	k, err := Decode(data, 0, types.BkeyFormat{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if k.Type != types.KeyTypeExtent {
		t.Errorf("Type: got %d", k.Type)
	}
	want := types.BkeyTuple{Inode: 4096, Offset: 1000, Snapshot: 1, Size: 3, VersionHi: 7, VersionLo: 9}
	if k.Tuple != want {
		t.Errorf("Tuple: got %+v, want %+v", k.Tuple, want)
	}
	if got := k.Value(data); len(got) != valueLen || got[0] != 1 {
		t.Errorf("Value: got %v", got)
	}
}

func TestDecodePackedFormat(t *testing.T) {
	// One field (inode) packed as 1 byte with a bias of 4000, everything
	// else width 0 (always the format's FieldOffset default).
	format := types.BkeyFormat{
		KeyU64s: 1,
		BitsPerField: [6]uint8{
			types.FieldInode:     8,
			types.FieldOffset:    0,
			types.FieldSnapshot:  0,
			types.FieldSize:      0,
			types.FieldVersionHi: 0,
			types.FieldVersionLo: 0,
		},
		FieldOffset: [6]uint64{
			types.FieldInode:   4000,
			types.FieldOffset:  500,
			types.FieldSnapshot: 2,
		},
	}
	// Packed key area: key_u64s=1 => 8 bytes total, header(3)+pad(1)+packed fields(4).
	// Only the inode field has nonzero width (1 byte), placed immediately
	// before the KeyU64s boundary (byte offset 7, the last byte of the
	// fixed 8-byte key area).
	data := make([]byte, 8)
	data[0] = 1 // u64s
	data[1] = 0 // format: packed (node's own format applies)
	data[2] = types.KeyTypeInode
	data[7] = 96 // packed inode field, added to FieldOffset 4000 => 4096

	k, err := Decode(data, 0, format)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if k.Tuple.Inode != 4096 {
		t.Errorf("Inode: got %d", k.Tuple.Inode)
	}
	if k.Tuple.Offset != 500 {
		t.Errorf("Offset (default): got %d", k.Tuple.Offset)
	}
	if k.Tuple.Snapshot != 2 {
		t.Errorf("Snapshot (default): got %d", k.Tuple.Snapshot)
	}
	if k.ValueStart != 8 || k.ValueEnd != 8 {
		t.Errorf("expected an empty value range, got [%d,%d)", k.ValueStart, k.ValueEnd)
	}
}

func TestDecodePackedFormatMultiField(t *testing.T) {
	// Mirrors BKEY_FORMAT_SHORT's {64,64,32,0,0,0} shape at smaller bit
	// widths so each field lands in a distinct, hand-checkable byte range:
	// inode 32 bits, offset 16 bits, snapshot 8 bits, size/version 0.
	format := types.BkeyFormat{
		KeyU64s: 2,
		BitsPerField: [6]uint8{
			types.FieldInode:     32,
			types.FieldOffset:    16,
			types.FieldSnapshot:  8,
			types.FieldSize:      0,
			types.FieldVersionHi: 0,
			types.FieldVersionLo: 0,
		},
		FieldOffset: [6]uint64{
			types.FieldInode:    1000,
			types.FieldOffset:   2000,
			types.FieldSnapshot: 0,
		},
	}
	// key_u64s=2 => 16-byte packed key area: header(4)+pad(5)+packed fields(7).
	// Fields are packed back from the key_u64s boundary (byte 16) in field
	// order, inode first (so it sits closest to the value area):
	//   inode:    bytes [12,16), 4 bytes
	//   offset:   bytes [10,12), 2 bytes
	//   snapshot: byte   9,      1 byte
	data := make([]byte, 16)
	data[0] = 2 // u64s
	data[1] = 0 // format: packed
	data[2] = types.KeyTypeExtent
	binary.LittleEndian.PutUint32(data[12:], 123) // inode raw, + 1000 bias
	binary.LittleEndian.PutUint16(data[10:], 50)  // offset raw, + 2000 bias
	data[9] = 7                                   // snapshot raw, + 0 bias

	k, err := Decode(data, 0, format)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := types.BkeyTuple{Inode: 1123, Offset: 2050, Snapshot: 7}
	if k.Tuple != want {
		t.Errorf("Tuple: got %+v, want %+v", k.Tuple, want)
	}
	if k.ValueStart != 16 || k.ValueEnd != 16 {
		t.Errorf("expected an empty value range, got [%d,%d)", k.ValueStart, k.ValueEnd)
	}
}

func TestLessOrdering(t *testing.T) {
	a := types.BkeyTuple{Inode: 1, Offset: 5}
	b := types.BkeyTuple{Inode: 1, Offset: 6}
	c := types.BkeyTuple{Inode: 2, Offset: 0}

	if !Less(a, b) {
		t.Error("a should sort before b")
	}
	if Less(b, a) {
		t.Error("b should not sort before a")
	}
	if !Less(b, c) {
		t.Error("b should sort before c (inode dominates)")
	}
	if !LessEq(a, a) {
		t.Error("LessEq should be reflexive")
	}
}
