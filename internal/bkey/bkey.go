// Package bkey decodes bcachefs's two bkey on-disk encodings — the
// fully-packed form (whose fields are extracted according to a node's
// bkey_format) and the unpacked "current" form — into a single canonical
// six-field tuple, and implements the comparison order the rest of this
// module's lookup and merge logic relies on.
package bkey

import (
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/byteio"
	"github.com/bcachefsreader/bcachefs/internal/types"
)

// FormatCurrent is the bkey format byte value meaning "already unpacked",
// as opposed to 0 meaning "packed according to the node's bkey_format".
const FormatCurrent = 1

// Key is a single decoded on-disk key: its header fields, its canonical
// position/size tuple, and the byte range of its value within the node
// buffer it was decoded from.
type Key struct {
	Offset        int // byte offset of this key's header within the node buffer
	U64s          uint8
	Format        uint8
	NeedsWhiteout bool
	Type          uint8
	Tuple         types.BkeyTuple
	ValueStart    int
	ValueEnd      int
}

// End returns the byte offset one past this key, i.e. where the next
// sibling key begins.
func (k Key) End() int { return k.Offset + int(k.U64s)*types.U }

// Value returns this key's value bytes from the node buffer data.
func (k Key) Value(data []byte) []byte {
	if k.ValueStart >= k.ValueEnd {
		return nil
	}
	return data[k.ValueStart:k.ValueEnd]
}

// header byte layout common to both encodings.
const (
	offU64s   = 0
	offFormat = 1
	offType   = 2
	// offset 3 is padding
	headerLen = 4
)

// current-format fixed layout after the 4-byte header: bversion hi(4)+lo(8),
// size(4), then bpos in its memory order snapshot(4)+offset(8)+inode(8).
const (
	curVersionHiOff = headerLen
	curVersionLoOff = curVersionHiOff + 4
	curSizeOff      = curVersionLoOff + 8
	curPosOff       = curSizeOff + 4
	curFixedLen     = curPosOff + 20 // == 40 == 5*types.U
)

// Decode parses the key at byte offset off in data. format is the owning
// node's bkey_format, used only when the key's own format byte is 0
// (packed).
func Decode(data []byte, off int, format types.BkeyFormat) (Key, error) {
	v := byteio.NewView(data)

	u64s, err := v.U8(off + offU64s)
	if err != nil {
		return Key{}, fmt.Errorf("bkey: reading u64s at %d: %w", off, err)
	}
	formatByte, err := v.U8(off + offFormat)
	if err != nil {
		return Key{}, fmt.Errorf("bkey: reading format byte at %d: %w", off, err)
	}
	typ, err := v.U8(off + offType)
	if err != nil {
		return Key{}, fmt.Errorf("bkey: reading type at %d: %w", off, err)
	}

	k := Key{
		Offset:        off,
		U64s:          u64s,
		Format:        formatByte & 0x7F,
		NeedsWhiteout: formatByte&0x80 != 0,
		Type:          typ,
	}

	if k.Format == FormatCurrent {
		tuple, err := decodeCurrent(v, off)
		if err != nil {
			return Key{}, err
		}
		k.Tuple = tuple
		k.ValueStart = off + curFixedLen
	} else if k.Format == 0 {
		tuple, err := decodePacked(v, off, format)
		if err != nil {
			return Key{}, err
		}
		k.Tuple = tuple
		k.ValueStart = off + int(format.KeyU64s)*types.U
	} else {
		return Key{}, fmt.Errorf("bkey: unknown key format %d at offset %d", k.Format, off)
	}

	k.ValueEnd = off + int(k.U64s)*types.U
	if k.ValueStart > k.ValueEnd {
		return Key{}, fmt.Errorf("bkey: value range [%d,%d) inverted at offset %d", k.ValueStart, k.ValueEnd, off)
	}
	return k, nil
}

func decodeCurrent(v byteio.View, off int) (types.BkeyTuple, error) {
	versionHi, err := v.U32(off + curVersionHiOff)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	versionLo, err := v.U64(off + curVersionLoOff)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	size, err := v.U32(off + curSizeOff)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	snapshot, err := v.U32(off + curPosOff)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	offset, err := v.U64(off + curPosOff + 4)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	inode, err := v.U64(off + curPosOff + 12)
	if err != nil {
		return types.BkeyTuple{}, err
	}
	return types.BkeyTuple{
		Inode:     inode,
		Offset:    offset,
		Snapshot:  snapshot,
		Size:      size,
		VersionHi: versionHi,
		VersionLo: versionLo,
	}, nil
}

// decodePacked reads each field's bits_per_field[i]/8 bytes in the
// canonical field order: inode first, so its bits sit immediately before the
// value area, with version_lo's bits closest to the key header.
func decodePacked(v byteio.View, off int, format types.BkeyFormat) (types.BkeyTuple, error) {
	p := off + int(format.KeyU64s)*types.U

	var out [6]uint64
	for i := 0; i <= 5; i++ {
		width := int(format.BitsPerField[i]) / 8
		if width == 0 {
			out[i] = format.FieldOffset[i]
			continue
		}
		p -= width
		raw, err := v.UintLE(p, width)
		if err != nil {
			return types.BkeyTuple{}, fmt.Errorf("bkey: packed field %d at %d: %w", i, p, err)
		}
		out[i] = raw + format.FieldOffset[i]
	}

	return types.BkeyTuple{
		Inode:     out[types.FieldInode],
		Offset:    out[types.FieldOffset],
		Snapshot:  uint32(out[types.FieldSnapshot]),
		Size:      uint32(out[types.FieldSize]),
		VersionHi: uint32(out[types.FieldVersionHi]),
		VersionLo: out[types.FieldVersionLo],
	}, nil
}

// Less reports whether a sorts strictly before b under the full six-field
// canonical order (inode, offset, snapshot, size, version_hi, version_lo),
// the order the merge iterator and comparators use.
func Less(a, b types.BkeyTuple) bool {
	switch {
	case a.Inode != b.Inode:
		return a.Inode < b.Inode
	case a.Offset != b.Offset:
		return a.Offset < b.Offset
	case a.Snapshot != b.Snapshot:
		return a.Snapshot < b.Snapshot
	case a.Size != b.Size:
		return a.Size < b.Size
	case a.VersionHi != b.VersionHi:
		return a.VersionHi < b.VersionHi
	default:
		return a.VersionLo < b.VersionLo
	}
}

// LessEq reports a <= b under the same order as Less.
func LessEq(a, b types.BkeyTuple) bool {
	return a == b || Less(a, b)
}
