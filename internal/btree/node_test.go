package btree

import (
	"encoding/binary"
	"testing"

	"github.com/bcachefsreader/bcachefs/internal/types"
)

func TestParseHeaderFields(t *testing.T) {
	data := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint64(data[offMagic:], 0xdeadbeefcafef00d)
	binary.LittleEndian.PutUint64(data[offFlags:], 7)
	binary.LittleEndian.PutUint32(data[offMinKey:], 1)            // snapshot
	binary.LittleEndian.PutUint64(data[offMinKey+4:], 100)        // offset
	binary.LittleEndian.PutUint64(data[offMinKey+12:], 4096)      // inode
	data[offFormat] = 40   // key_u64s
	data[offFormat+1] = 6  // nr_fields
	for i := 0; i < 6; i++ {
		data[offFormat+2+i] = 64
	}

	n, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Magic != 0xdeadbeefcafef00d {
		t.Errorf("Magic: got %#x", n.Magic)
	}
	if n.Flags != 7 {
		t.Errorf("Flags: got %d", n.Flags)
	}
	if n.MinKey != (types.Bpos{Snapshot: 1, Offset: 100, Inode: 4096}) {
		t.Errorf("MinKey: got %+v", n.MinKey)
	}
	if n.Format.KeyU64s != 40 || n.Format.NrFields != 6 {
		t.Errorf("Format: got %+v", n.Format)
	}
}

func TestParseTooShort(t *testing.T) {
	if _, err := Parse(make([]byte, HeaderLen-1)); err == nil {
		t.Fatal("expected ErrTruncatedNode")
	}
}

func TestParseRejectsNonByteAlignedFieldWidth(t *testing.T) {
	data := make([]byte, HeaderLen)
	data[offFormat+2] = 3 // not one of 0/8/16/.../64
	if _, err := Parse(data); err == nil {
		t.Fatal("expected ErrBadBkeyFormat")
	}
}

func TestBsetsWalksBlockAlignedChain(t *testing.T) {
	const blockSize = 512
	data := make([]byte, 1024)

	// First bset at HeaderLen, u64s=2 (16 bytes of key content).
	first := HeaderLen
	binary.LittleEndian.PutUint64(data[first:], 11)     // seq
	binary.LittleEndian.PutUint64(data[first+8:], 22)   // journal_seq
	binary.LittleEndian.PutUint16(data[first+22:], 2)   // u64s

	// keysEnd = 136+24+16 = 176; next boundary = 512 (unconditional round up).
	// The 16-byte checksum at [512,528) is left zero, so the walk continues.
	second := 528
	binary.LittleEndian.PutUint16(data[second+22:], 0) // u64s=0: skipped, not appended
	// Next candidate would start at 1024, beyond the buffer: walk stops there.

	n := &Node{data: data}
	bsets, err := n.Bsets(blockSize)
	if err != nil {
		t.Fatalf("Bsets: %v", err)
	}
	if len(bsets) != 1 {
		t.Fatalf("got %d bsets, want 1", len(bsets))
	}
	if bsets[0].Seq != 11 || bsets[0].JournalSeq != 22 {
		t.Errorf("bset[0]: got %+v", bsets[0])
	}
	if bsets[0].KeysStart != first+bsetHeaderLen || bsets[0].KeysEnd != first+bsetHeaderLen+16 {
		t.Errorf("bset[0] key range: got [%d,%d)", bsets[0].KeysStart, bsets[0].KeysEnd)
	}
}

func TestBsetsStopsOnNonZeroChecksum(t *testing.T) {
	const blockSize = 512
	data := make([]byte, 1024)
	first := HeaderLen
	binary.LittleEndian.PutUint16(data[first+22:], 2)
	data[512] = 0xFF // non-zero checksum byte: the reader must stop here
	binary.LittleEndian.PutUint16(data[528+22:], 4)

	n := &Node{data: data}
	bsets, err := n.Bsets(blockSize)
	if err != nil {
		t.Fatalf("Bsets: %v", err)
	}
	if len(bsets) != 1 {
		t.Fatalf("got %d bsets, want 1 (second bset must not be reached)", len(bsets))
	}
}

func TestBsetsRejectsZeroBlockSize(t *testing.T) {
	n := &Node{data: make([]byte, HeaderLen)}
	if _, err := n.Bsets(0); err == nil {
		t.Fatal("expected error for zero block size")
	}
}

func TestKeysDecodesCurrentFormatKey(t *testing.T) {
	const bsetOffset = HeaderLen
	const keyOffset = bsetOffset + bsetHeaderLen
	const valueLen = 8
	const keyLen = 40 + valueLen // current-format fixed region (incl. its own 4-byte header) + value
	data := make([]byte, keyOffset+keyLen)

	binary.LittleEndian.PutUint16(data[bsetOffset+22:], uint16(keyLen/types.U))

	data[keyOffset+0] = uint8(keyLen / types.U) // u64s
	data[keyOffset+1] = 1                       // format: current
	data[keyOffset+2] = types.KeyTypeInode       // type
	binary.LittleEndian.PutUint64(data[keyOffset+24:], 4096) // bpos.offset == inode number
	binary.LittleEndian.PutUint64(data[keyOffset+32:], 0)    // bpos.inode
	copy(data[keyOffset+40:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0})

	n := &Node{data: data}
	b := Bset{KeysStart: keyOffset, KeysEnd: keyOffset + keyLen}
	keys, err := n.Keys(b)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	k := keys[0]
	if k.Type != types.KeyTypeInode {
		t.Errorf("Type: got %d", k.Type)
	}
	if k.Tuple.Offset != 4096 {
		t.Errorf("Tuple.Offset: got %d", k.Tuple.Offset)
	}
	if got := k.Value(data); len(got) != valueLen || got[0] != 0xDE {
		t.Errorf("Value: got %x", got)
	}
}
