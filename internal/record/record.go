// Package record projects a decoded b-key plus its value bytes into one of
// the three public record types this reader exposes. Grounded on
// Bcachefs_iter_make_extent/_inode/_dirent and benz_bch_file_offset_size in
// the libbenzina bcachefs reader.
package record

import (
	"bytes"
	"encoding/binary"

	"github.com/bcachefsreader/bcachefs/internal/bkey"
	"github.com/bcachefsreader/bcachefs/internal/types"
	"github.com/bcachefsreader/bcachefs/internal/varint"
)

const sectorSize = 512

// Extent is a decoded file extent: the byte range [FileOffset,
// FileOffset+Size) of Inode maps to [Offset, Offset+Size) of the image.
type Extent struct {
	Inode      uint64
	FileOffset uint64
	Offset     uint64
	Size       uint64
}

// Inode is a decoded inode: its number, its size in bytes, and the SipHash
// seed used to hash its directory entries' names.
type Inode struct {
	Inode    uint64
	Size     uint64
	HashSeed uint64
}

// Dirent is a decoded directory entry.
type Dirent struct {
	ParentInode uint64
	Inode       uint64
	Type        uint8
	Name        []byte
}

// MakeExtent builds an Extent from a decoded key of type extent or
// inline_data. nodeImageOffset is the image byte offset the owning node's
// bytes were read from (ptr.offset*512 of the btree_ptr_v2 used to load
// it), needed only for inline_data's value-relative offset. ok is false for
// any other key type.
func MakeExtent(k bkey.Key, data []byte, nodeImageOffset uint64) (Extent, bool) {
	switch k.Type {
	case types.KeyTypeExtent:
		val := k.Value(data)
		if len(val) < 8 {
			return Extent{}, false
		}
		ptr := types.ExtentPtr(binary.LittleEndian.Uint64(val[0:8]))
		return Extent{
			Inode:      k.Tuple.Inode,
			FileOffset: (k.Tuple.Offset - uint64(k.Tuple.Size)) * sectorSize,
			Offset:     ptr.OffsetSectors() * sectorSize,
			Size:       uint64(k.Tuple.Size) * sectorSize,
		}, true
	case types.KeyTypeInlineData:
		size := int(k.U64s)*types.U - (k.ValueStart - k.Offset)
		if size < 0 {
			size = 0
		}
		return Extent{
			Inode:      k.Tuple.Inode,
			FileOffset: (k.Tuple.Offset - uint64(k.Tuple.Size)) * sectorSize,
			Offset:     nodeImageOffset + uint64(k.ValueStart),
			Size:       uint64(size),
		}, true
	default:
		return Extent{}, false
	}
}

// MakeInode builds an Inode from a decoded key of type inode. ok is false
// for any other key type.
func MakeInode(k bkey.Key, data []byte) (Inode, bool, error) {
	if k.Type != types.KeyTypeInode {
		return Inode{}, false, nil
	}
	val := k.Value(data)
	if len(val) < 8 {
		return Inode{}, false, varint.ErrTruncatedInode
	}
	hashSeed := binary.LittleEndian.Uint64(val[0:8])
	size, err := varint.DecodeInodeSize(val)
	if err != nil {
		return Inode{}, false, err
	}
	return Inode{Inode: k.Tuple.Offset, Size: size, HashSeed: hashSeed}, true, nil
}

// direntValueHeaderLen is sizeof(d_inum) + sizeof(d_type); d_name starts
// right after.
const direntValueHeaderLen = 8 + 1

// MakeDirent builds a Dirent from a decoded key of type dirent. ok is
// false for any other key type.
func MakeDirent(k bkey.Key, data []byte) (Dirent, bool) {
	if k.Type != types.KeyTypeDirent {
		return Dirent{}, false
	}
	val := k.Value(data)
	if len(val) < direntValueHeaderLen {
		return Dirent{}, false
	}
	inum := binary.LittleEndian.Uint64(val[0:8])
	typ := val[8]
	nameBytes := val[direntValueHeaderLen:]
	nameLen := bytes.IndexByte(nameBytes, 0)
	if nameLen < 0 {
		nameLen = len(nameBytes)
	}
	return Dirent{
		ParentInode: k.Tuple.Inode,
		Inode:       inum,
		Type:        typ,
		Name:        nameBytes[:nameLen],
	}, true
}
