package bkey

import (
	"encoding/binary"
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/types"
)

// BtreePtrV2FixedLen is sizeof(struct bch_btree_ptr_v2): mem_ptr(8) +
// seq(8) + sectors_written(2) + flags(2) + min_key(20), not counting the
// trailing device pointer array.
const BtreePtrV2FixedLen = 8 + 8 + 2 + 2 + 20

// BtreePtr is a decoded interior key's btree_ptr_v2 value: where the child
// node lives on disk and the minimum key it claims to cover.
type BtreePtr struct {
	MinKey         types.Bpos
	Ptr            types.ExtentPtr
	SectorsWritten uint16
}

// DecodeBtreePtrV2 decodes a single btree_ptr_v2 value — the value of an
// interior key found while descending a node, as opposed to the
// possibly-repeated candidate list a btree_root jset entry carries (see
// superblock.RootPointers). Grounded on _Bcachefs_find_bkey, which casts
// iter->bch_val directly to one struct bch_btree_ptr_v2 without scanning
// for an in-use replica.
func DecodeBtreePtrV2(value []byte) (BtreePtr, error) {
	if len(value) < BtreePtrV2FixedLen+8 {
		return BtreePtr{}, fmt.Errorf("bkey: btree_ptr_v2 value too short (%d bytes)", len(value))
	}
	sectorsWritten := binary.LittleEndian.Uint16(value[16:18])
	minKey := types.Bpos{
		Snapshot: binary.LittleEndian.Uint32(value[20:24]),
		Offset:   binary.LittleEndian.Uint64(value[24:32]),
		Inode:    binary.LittleEndian.Uint64(value[32:40]),
	}
	ptr := types.ExtentPtr(binary.LittleEndian.Uint64(value[BtreePtrV2FixedLen : BtreePtrV2FixedLen+8]))
	return BtreePtr{MinKey: minKey, Ptr: ptr, SectorsWritten: sectorsWritten}, nil
}
