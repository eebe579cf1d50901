// Package varint decodes the unary-prefixed varint encoding bcachefs uses
// for packed inode fields, and in particular the inode's on-disk size
// field. The byte-length rule and shift table below are grounded directly
// on benz_bch_inode_unpack_size from the libbenzina bcachefs reader this
// module's inode decoding follows.
package varint

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// ErrUnsupportedInodeEncoding is returned when an inode does not use the
// varint field packing this decoder understands.
var ErrUnsupportedInodeEncoding = errors.New("bcachefs: unsupported (non-varint) inode encoding")

// ErrTruncatedInode is returned when an inode's value area ends before the
// fields this decoder needs to read.
var ErrTruncatedInode = errors.New("bcachefs: truncated inode value")

// shift, indexed by [varint byte length - 1], gives the number of bits to
// shift the trailing 8-byte read right by to land the decoded value.
var shift = [9]uint{57, 50, 43, 36, 29, 22, 15, 8, 0}

// fieldLen returns the on-disk byte length of the varint whose first byte
// is b: the count of trailing zero bits in b, plus one. A byte of 0x00
// (eight trailing zeros) yields the maximum length of 9 — bits.TrailingZeros8
// saturates at 8 for a zero input, giving exactly that saturation.
func fieldLen(b byte) int {
	return bits.TrailingZeros8(b) + 1
}

// inodeFieldsOffset is the byte offset of the variable fields area within
// a bch_inode value: bi_hash_seed(8) + bi_flags(4) + bi_mode(2).
const inodeFieldsOffset = 14

const biFlagsOffset = 8
const newVarintFlag = uint32(1) << 31

// DecodeInodeSize extracts the bi_size field (the 5th logical field / 9th
// varint) from a bch_inode value. value must be the full decoded value
// byte range for the inode key. Inodes with fewer than 5 packed fields
// have no size field encoded and report size 0, not an error.
func DecodeInodeSize(value []byte) (uint64, error) {
	if len(value) < inodeFieldsOffset {
		return 0, ErrTruncatedInode
	}
	biFlags := binary.LittleEndian.Uint32(value[biFlagsOffset : biFlagsOffset+4])
	nrFields := int((biFlags >> 24) & 0x7F)
	newVarint := biFlags&newVarintFlag != 0

	if !newVarint {
		return 0, ErrUnsupportedInodeEncoding
	}
	if nrFields < 5 {
		return 0, nil
	}
	if len(value)-inodeFieldsOffset < nrFields {
		return 0, ErrTruncatedInode
	}

	r := inodeFieldsOffset
	e := len(value)
	length := 0
	for i := 0; i < 9; i++ {
		if r >= e {
			return 0, ErrTruncatedInode
		}
		length = fieldLen(value[r])
		r += length
		if r > e {
			return 0, ErrTruncatedInode
		}
	}

	if r < 8 {
		return 0, ErrTruncatedInode
	}
	raw := binary.LittleEndian.Uint64(value[r-8 : r])
	return raw >> shift[length-1], nil
}
