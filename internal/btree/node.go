// Package btree parses bcachefs btree nodes: the fixed node header, the
// packed bkey_format it carries, and the sequence of bsets (the original
// write plus any subsequent "journal entries" appended to the same node)
// that must be merged to see the node's current contents. Grounded on
// struct btree_node / struct bset in the reference bcachefs.h and on
// benz_bch_next_bset's exact advance/validity rules.
package btree

import (
	"errors"
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/bkey"
	"github.com/bcachefsreader/bcachefs/internal/byteio"
	"github.com/bcachefsreader/bcachefs/internal/types"
	"github.com/bcachefsreader/bcachefs/internal/walk"
)

// ErrTruncatedNode is returned when a node's data is too short for its
// declared structure.
var ErrTruncatedNode = errors.New("bcachefs: truncated btree node")

// ErrBadBkeyFormat is returned when a node's bkey_format is nonsensical
// (e.g. a field bit width that is not a whole number of bytes up to 64).
var ErrBadBkeyFormat = errors.New("bcachefs: bad bkey format")

// Byte offsets within a btree_node's fixed header, up to the first bset.
const (
	offCsum   = 0  // 16 bytes, unused (checksum verification out of scope)
	offMagic  = 16 // 8 bytes
	offFlags  = 24 // 8 bytes
	offMinKey = 32 // 20 bytes (bpos)
	offMaxKey = 52 // 20 bytes (bpos)
	offPtr    = 72 // 8 bytes, unused extent_ptr left over from older formats
	offFormat = 80 // 56 bytes (bkey_format)

	// HeaderLen is the size of a btree_node's fixed header, i.e. the byte
	// offset of its first bset.
	HeaderLen = offFormat + formatLen
)

const formatLen = 1 + 1 + 6 + 6*8 // key_u64s + nr_fields + bits_per_field[6] + field_offset[6]

// bsetHeaderLen is the size of a struct bset header: seq(8) + journal_seq(8)
// + flags(4) + version(2) + u64s(2).
const bsetHeaderLen = 24

// btreeNodeEntryCsumLen is the checksum that precedes every bset after the
// first.
const btreeNodeEntryCsumLen = 16

// Node is a parsed btree node: its header fields and the raw bytes needed
// to walk its bsets.
type Node struct {
	Magic  uint64
	Flags  uint64
	MinKey types.Bpos
	MaxKey types.Bpos
	Format types.BkeyFormat

	data []byte
}

// Parse decodes a btree node's fixed header from data, which must contain
// at least the full node (header plus every bset it holds).
func Parse(data []byte) (*Node, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: node shorter than header (%d < %d)", ErrTruncatedNode, len(data), HeaderLen)
	}
	v := byteio.NewView(data)

	n := &Node{data: data}
	var err error
	if n.Magic, err = v.U64(offMagic); err != nil {
		return nil, err
	}
	if n.Flags, err = v.U64(offFlags); err != nil {
		return nil, err
	}
	n.MinKey, err = decodeBpos(v, offMinKey)
	if err != nil {
		return nil, err
	}
	n.MaxKey, err = decodeBpos(v, offMaxKey)
	if err != nil {
		return nil, err
	}
	n.Format, err = decodeFormat(v, offFormat)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func decodeBpos(v byteio.View, off int) (types.Bpos, error) {
	snapshot, err := v.U32(off)
	if err != nil {
		return types.Bpos{}, err
	}
	offset, err := v.U64(off + 4)
	if err != nil {
		return types.Bpos{}, err
	}
	inode, err := v.U64(off + 12)
	if err != nil {
		return types.Bpos{}, err
	}
	return types.Bpos{Snapshot: snapshot, Offset: offset, Inode: inode}, nil
}

func decodeFormat(v byteio.View, off int) (types.BkeyFormat, error) {
	var f types.BkeyFormat
	keyU64s, err := v.U8(off)
	if err != nil {
		return f, err
	}
	nrFields, err := v.U8(off + 1)
	if err != nil {
		return f, err
	}
	f.KeyU64s = keyU64s
	f.NrFields = nrFields
	for i := 0; i < 6; i++ {
		b, err := v.U8(off + 2 + i)
		if err != nil {
			return f, err
		}
		if b != 0 && b != 8 && b != 16 && b != 24 && b != 32 && b != 40 && b != 48 && b != 56 && b != 64 {
			return f, fmt.Errorf("%w: field %d has non-byte-aligned bit width %d", ErrBadBkeyFormat, i, b)
		}
		f.BitsPerField[i] = b
	}
	for i := 0; i < 6; i++ {
		off64, err := v.U64(off + 8 + i*8)
		if err != nil {
			return f, err
		}
		f.FieldOffset[i] = off64
	}
	return f, nil
}

// Bset is one decoded bset region within a node.
type Bset struct {
	Seq        uint64
	JournalSeq uint64
	Flags      uint32
	Version    uint16
	U64s       uint16
	KeysStart  int
	KeysEnd    int
}

// Bsets returns every bset in the node, in on-disk (oldest-first) order, by
// walking benz_bch_next_bset's advance rule: each subsequent bset starts at
// the next blockSize-aligned boundary (relative to the start of the node)
// following the prior bset's keys, always advancing at least one full
// block even when the prior end already landed on a boundary, preceded by
// a 16-byte btree_node_entry checksum. Checksum verification is out of
// scope, so a zero checksum is treated as "trust this bset" and anything
// else stops the walk, exactly as the reference reader does pending real
// checksum support. A bset whose u64s reads as 0 is skipped rather than
// appended; once the walk runs into the node's zero-padded tail every
// further candidate also reads u64s==0 until the buffer end is reached,
// which is what actually terminates enumeration.
func (n *Node) Bsets(blockSize uint64) ([]Bset, error) {
	if blockSize == 0 {
		return nil, fmt.Errorf("btree: block size must be nonzero")
	}
	var out []Bset
	offset := HeaderLen
	for offset >= 0 && offset+bsetHeaderLen <= len(n.data) {
		v := byteio.NewView(n.data)
		seq, err := v.U64(offset)
		if err != nil {
			return nil, err
		}
		journalSeq, err := v.U64(offset + 8)
		if err != nil {
			return nil, err
		}
		flags, err := v.U32(offset + 16)
		if err != nil {
			return nil, err
		}
		version, err := v.U16(offset + 20)
		if err != nil {
			return nil, err
		}
		u64s, err := v.U16(offset + 22)
		if err != nil {
			return nil, err
		}

		keysStart := offset + bsetHeaderLen
		keysEnd := keysStart + int(u64s)*types.U
		if keysEnd > len(n.data) {
			return nil, fmt.Errorf("%w: bset at %d overruns node", ErrTruncatedNode, offset)
		}

		if u64s != 0 {
			out = append(out, Bset{
				Seq: seq, JournalSeq: journalSeq, Flags: flags, Version: version, U64s: u64s,
				KeysStart: keysStart, KeysEnd: keysEnd,
			})
		}

		// Advance to the next bset: round up to the next blockSize
		// boundary relative to the node start (unconditionally, even if
		// already aligned), then skip the btree_node_entry checksum that
		// precedes it.
		rel := keysEnd + (int(blockSize) - keysEnd%int(blockSize))
		if rel+btreeNodeEntryCsumLen > len(n.data) {
			break
		}
		if !isZero(n.data[rel : rel+btreeNodeEntryCsumLen]) {
			break
		}
		offset = rel + btreeNodeEntryCsumLen
	}
	return out, nil
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// Keys decodes every packed key within a bset's key region.
func (n *Node) Keys(b Bset) ([]bkey.Key, error) {
	var out []bkey.Key
	err := walk.ForEach(n.data, b.KeysStart, b.KeysEnd, walk.Bkeys, func(offset int) (bool, error) {
		k, err := bkey.Decode(n.data, offset, n.Format)
		if err != nil {
			return false, err
		}
		out = append(out, k)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Data returns the node's raw backing bytes, for slicing key values out of.
func (n *Node) Data() []byte { return n.data }

// MagicMatches reports whether a node's magic equals the filesystem's bset
// magic, i.e. whether the node belongs to the filesystem it was read from.
func MagicMatches(nodeMagic, bsetMagic uint64) bool { return nodeMagic == bsetMagic }
