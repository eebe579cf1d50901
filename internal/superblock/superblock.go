// Package superblock parses the bcachefs superblock: its fixed header, its
// variable-length sb-fields list, the clean-shutdown journal snapshot
// recorded in the "clean" field, and the btree root pointers recorded
// there. Layouts are grounded on struct bch_sb and friends in the
// reference bcachefs.h this reader's format support was distilled from.
package superblock

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/byteio"
	"github.com/bcachefsreader/bcachefs/internal/types"
	"github.com/bcachefsreader/bcachefs/internal/walk"
)

// SbOffset is the fixed byte offset of the superblock within a bcachefs
// image: sector 8 of 512 bytes.
const SbOffset = 8 * 512

// fixedHeaderLen is the size, in bytes, of bch_sb's fields up to (but not
// including) the embedded bch_sb_layout.
const fixedHeaderLen = 240

// layoutLen is the byte size this reader treats struct bch_sb_layout as
// occupying. The reference C struct's sb_offset[61] array would make this
// larger, but this reader never needs alternate superblock locations
// (multi-device and repair are out of scope), so the layout region is
// skipped as an opaque span sized to put sb-fields at byte 496 — the
// boundary this format documents fields as starting at.
const layoutLen = 256

// FieldsOffset is the byte offset, relative to the start of the
// superblock, where the sb-fields list begins.
const FieldsOffset = fixedHeaderLen + layoutLen

// sbFieldHeaderLen is the size of the generic bch_sb_field header
// (u64s uint32 + type uint32) each field record starts with.
const sbFieldHeaderLen = 8

var (
	// ErrBadSuperblock is returned when the superblock's magic or basic
	// framing doesn't check out.
	ErrBadSuperblock = errors.New("bcachefs: bad superblock")
	// ErrNotClean is returned when no clean-shutdown sb-field is present;
	// this reader only supports images that were unmounted cleanly.
	ErrNotClean = errors.New("bcachefs: filesystem was not cleanly unmounted")
	// ErrNoSuchTree is returned when a requested btree id has no root
	// pointer recorded in the clean field.
	ErrNoSuchTree = errors.New("bcachefs: no such btree")
)

// Superblock is the parsed fixed header of a bch_sb, plus the raw bytes
// needed to walk its sb-fields.
type Superblock struct {
	Version, VersionMin uint16
	Magic               types.UUID
	UUID, UserUUID      types.UUID
	Label               [32]byte
	Offset, Seq         uint64
	BlockSize           uint16
	DevIdx, NrDevices   uint8
	U64s                uint32
	TimeBaseLo          uint64
	TimeBaseHi          uint32
	TimePrecision       uint32
	Flags               [8]uint64
	Features            [2]uint64
	Compat              [2]uint64

	data []byte // the superblock and its sb-fields, starting at byte 0 == SbOffset in the image
}

// Parse decodes a superblock from data, which must begin at the
// superblock's own byte 0 (i.e. image[SbOffset:]) and extend at least
// through its sb-fields list.
func Parse(data []byte) (*Superblock, error) {
	if len(data) < fixedHeaderLen+layoutLen {
		return nil, fmt.Errorf("%w: truncated header", ErrBadSuperblock)
	}
	v := byteio.NewView(data)

	sb := &Superblock{data: data}
	var err error
	if sb.Version, err = v.U16(16); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSuperblock, err)
	}
	if sb.VersionMin, err = v.U16(18); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSuperblock, err)
	}
	copy(sb.Magic[:], data[24:40])
	copy(sb.UUID[:], data[40:56])
	copy(sb.UserUUID[:], data[56:72])
	copy(sb.Label[:], data[72:104])
	if sb.Offset, err = v.U64(104); err != nil {
		return nil, err
	}
	if sb.Seq, err = v.U64(112); err != nil {
		return nil, err
	}
	if sb.BlockSize, err = v.U16(120); err != nil {
		return nil, err
	}
	if sb.DevIdx, err = v.U8(122); err != nil {
		return nil, err
	}
	if sb.NrDevices, err = v.U8(123); err != nil {
		return nil, err
	}
	if sb.U64s, err = v.U32(124); err != nil {
		return nil, err
	}
	if sb.TimeBaseLo, err = v.U64(128); err != nil {
		return nil, err
	}
	if sb.TimeBaseHi, err = v.U32(136); err != nil {
		return nil, err
	}
	if sb.TimePrecision, err = v.U32(140); err != nil {
		return nil, err
	}
	for i := 0; i < 8; i++ {
		if sb.Flags[i], err = v.U64(144 + i*8); err != nil {
			return nil, err
		}
	}
	for i := 0; i < 2; i++ {
		if sb.Features[i], err = v.U64(208 + i*8); err != nil {
			return nil, err
		}
	}
	for i := 0; i < 2; i++ {
		if sb.Compat[i], err = v.U64(224 + i*8); err != nil {
			return nil, err
		}
	}

	if sb.Magic != types.BcacheMagic {
		return nil, fmt.Errorf("%w: magic mismatch", ErrBadSuperblock)
	}

	fieldsEnd := FieldsOffset + int(sb.U64s)*types.U
	if fieldsEnd > len(data) {
		return nil, fmt.Errorf("%w: sb-fields region [%d,%d) exceeds available data (%d)", ErrBadSuperblock, FieldsOffset, fieldsEnd, len(data))
	}

	return sb, nil
}

// FieldsRegion returns the raw bytes of the sb-fields list.
func (sb *Superblock) FieldsRegion() []byte {
	return sb.data[FieldsOffset : FieldsOffset+int(sb.U64s)*types.U]
}

// Field is one decoded sb-field record: its type and its body bytes (the
// record's bytes after the generic 8-byte bch_sb_field header).
type Field struct {
	Type uint32
	Body []byte
}

// FindField returns the first sb-field of the given type, if present.
func (sb *Superblock) FindField(fieldType uint32) (Field, bool, error) {
	region := sb.FieldsRegion()
	var found Field
	ok := false
	err := walk.ForEach(region, 0, len(region), walk.SbFields, func(offset int) (bool, error) {
		u64s := binary.LittleEndian.Uint32(region[offset : offset+4])
		typ := binary.LittleEndian.Uint32(region[offset+4 : offset+8])
		if typ == fieldType {
			recordLen := int(u64s) * types.U
			if offset+recordLen > len(region) {
				return false, fmt.Errorf("superblock: field type %d record overruns region", fieldType)
			}
			found = Field{Type: typ, Body: region[offset+sbFieldHeaderLen : offset+recordLen]}
			ok = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return Field{}, false, err
	}
	return found, ok, nil
}

// JsetMagic and BsetMagic derive the per-filesystem journal-set and
// bset magic numbers from the superblock's UUID.
func (sb *Superblock) JsetMagic() uint64 {
	return binary.LittleEndian.Uint64(sb.UUID[:8]) ^ types.JsetMagicXor
}

func (sb *Superblock) BsetMagic() uint64 {
	return binary.LittleEndian.Uint64(sb.UUID[:8]) ^ types.BsetMagicXor
}

// BlockSizeBytes returns the device block size in bytes (the on-disk field
// is in 512-byte sectors).
func (sb *Superblock) BlockSizeBytes() uint64 {
	return uint64(sb.BlockSize) * 512
}
