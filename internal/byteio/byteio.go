// Package byteio provides the small set of little-endian byte-view and
// bit-extraction primitives the bcachefs on-disk decoders are built on.
//
// These are hand-rolled rather than built on encoding/binary's reflective
// Read/Write because the on-disk format mixes fixed-width fields with
// bias-encoded lengths and sub-byte bitfields that a struct tag cannot
// express; every decoder in this module reads fields at explicit byte
// offsets the way the rest of this codebase's parsers do.
package byteio

import (
	"encoding/binary"
	"fmt"
)

// View is a read-only little-endian window into a byte slice, used to walk
// fixed and variable-length on-disk records without reslicing at every
// field.
type View struct {
	data []byte
}

// NewView wraps data for little-endian field access.
func NewView(data []byte) View { return View{data: data} }

// Len returns the number of bytes remaining in the view.
func (v View) Len() int { return len(v.data) }

// Bytes returns the underlying slice.
func (v View) Bytes() []byte { return v.data }

// Slice returns the sub-view [off, off+n), erroring if it would run past
// the end of the view.
func (v View) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(v.data) {
		return nil, fmt.Errorf("byteio: slice [%d:%d] out of range (len %d)", off, off+n, len(v.data))
	}
	return v.data[off : off+n], nil
}

// U8 reads a single byte at off.
func (v View) U8(off int) (uint8, error) {
	b, err := v.Slice(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16 at off.
func (v View) U16(off int) (uint16, error) {
	b, err := v.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32 at off.
func (v View) U32(off int) (uint32, error) {
	b, err := v.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64 at off.
func (v View) U64(off int) (uint64, error) {
	b, err := v.Slice(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// UintLE reads a little-endian unsigned integer of the given byte width
// (1, 2, 4, or 8) at off. Width 0 returns 0 without consuming bytes,
// matching the packed-bkey format's convention for an absent field.
func (v View) UintLE(off, width int) (uint64, error) {
	switch width {
	case 0:
		return 0, nil
	case 1:
		x, err := v.U8(off)
		return uint64(x), err
	case 2:
		x, err := v.U16(off)
		return uint64(x), err
	case 4:
		x, err := v.U32(off)
		return uint64(x), err
	case 8:
		return v.U64(off)
	default:
		return 0, fmt.Errorf("byteio: unsupported field width %d bytes", width)
	}
}

// PackExtract reads a little-endian unsigned integer of widthBytes ending
// exactly at byte offset end (i.e. spanning [end-widthBytes, end)). This is
// the packed-bkey field decode primitive: fields are read backward from a
// fixed cursor, each field's storage ending where the next one begins.
func PackExtract(data []byte, end, widthBytes int) (uint64, error) {
	if widthBytes == 0 {
		return 0, nil
	}
	start := end - widthBytes
	if start < 0 || end > len(data) {
		return 0, fmt.Errorf("byteio: pack_extract [%d:%d] out of range (len %d)", start, end, len(data))
	}
	return NewView(data).UintLE(start, widthBytes)
}

// Bit extracts a single bit at position pos (0 = LSB) of x.
func Bit(x uint64, pos uint) bool { return (x>>pos)&1 != 0 }

// Bits extracts an n-bit field starting at bit position pos (0 = LSB) of x.
func Bits(x uint64, pos, n uint) uint64 {
	if n >= 64 {
		return x >> pos
	}
	return (x >> pos) & ((uint64(1) << n) - 1)
}
