package superblock

import (
	"encoding/binary"
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/bkey"
	"github.com/bcachefsreader/bcachefs/internal/types"
	"github.com/bcachefsreader/bcachefs/internal/walk"
)

// cleanHeaderLen is the size of bch_sb_field_clean's own fields (flags,
// the two unused clock fields, and journal_seq) that precede its list of
// jset_entry records.
const cleanHeaderLen = 4 + 2 + 2 + 8

// Clean is the decoded "clean" sb-field: the journal-set snapshot taken at
// the last clean shutdown.
type Clean struct {
	Flags      uint32
	JournalSeq uint64
	entries    []byte // raw jset_entry list
}

// LoadClean locates and parses the clean sb-field. It returns ErrNotClean
// if the superblock carries no such field — meaning the image was not
// unmounted cleanly, which this read-only reader cannot recover from
// (journal replay is out of scope).
func (sb *Superblock) LoadClean() (*Clean, error) {
	field, ok, err := sb.FindField(types.SbFieldClean)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotClean
	}
	if len(field.Body) < cleanHeaderLen {
		return nil, fmt.Errorf("%w: truncated clean field", ErrBadSuperblock)
	}
	c := &Clean{
		Flags:      binary.LittleEndian.Uint32(field.Body[0:4]),
		JournalSeq: binary.LittleEndian.Uint64(field.Body[8:16]),
		entries:    field.Body[cleanHeaderLen:],
	}
	return c, nil
}

// JsetEntry is one decoded journal-set entry header plus its value bytes.
type JsetEntry struct {
	BtreeID uint8
	Level   uint8
	Type    uint8
	Value   []byte
}

const jsetEntryHeaderLen = 8

// Entries returns every jset_entry recorded in the clean field of the
// requested type, or every entry if typ is negative.
func (c *Clean) Entries(typ int) ([]JsetEntry, error) {
	var out []JsetEntry
	region := c.entries
	err := walk.ForEach(region, 0, len(region), walk.JsetEntries, func(offset int) (bool, error) {
		if offset+jsetEntryHeaderLen > len(region) {
			return false, fmt.Errorf("superblock: jset entry at %d truncated", offset)
		}
		u64s := binary.LittleEndian.Uint16(region[offset : offset+2])
		btreeID := region[offset+2]
		level := region[offset+3]
		entryType := region[offset+4]
		valueLen := int(u64s) * types.U
		valueStart := offset + jsetEntryHeaderLen
		valueEnd := valueStart + valueLen
		if valueEnd > len(region) {
			return false, fmt.Errorf("superblock: jset entry at %d overruns region", offset)
		}
		if typ < 0 || int(entryType) == typ {
			out = append(out, JsetEntry{
				BtreeID: btreeID,
				Level:   level,
				Type:    entryType,
				Value:   region[valueStart:valueEnd],
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// btreePtrV2FixedLen is sizeof(struct bch_btree_ptr_v2)'s fixed part:
// mem_ptr(8) + seq(8) + sectors_written(2) + flags(2) + min_key(20).
const btreePtrV2FixedLen = 8 + 8 + 2 + 2 + 20

// RootPointer is the resolved root btree node location for one tree.
type RootPointer struct {
	MinKey         types.Bpos
	Ptr            types.ExtentPtr
	SectorsWritten uint16
}

// RootPointers resolves, for every btree_root jset_entry in the clean
// field, the first device candidate whose leading extent pointer is
// marked used. jset_entry btree_root values embed a bkey whose value area
// holds a fixed-stride array of bch_btree_ptr_v2 candidates (one per
// device); candidates are walked at a constant 40-byte stride exactly as
// the reference scanner does, stopping at the first with an in-use
// leading pointer.
func RootPointers(entries []JsetEntry) (map[uint8]RootPointer, error) {
	out := make(map[uint8]RootPointer)
	for _, e := range entries {
		k, err := bkey.Decode(e.Value, 0, types.BkeyFormat{})
		if err != nil {
			return nil, fmt.Errorf("superblock: decoding btree_root bkey: %w", err)
		}
		val := e.Value
		candidate := k.ValueStart
		pEnd := k.ValueEnd
		for candidate+btreePtrV2FixedLen+8 <= pEnd {
			ptrBytes := val[candidate+btreePtrV2FixedLen : candidate+btreePtrV2FixedLen+8]
			ptr := types.ExtentPtr(binary.LittleEndian.Uint64(ptrBytes))
			if !ptr.Unused() {
				minKey := decodeBpos(val[candidate+20 : candidate+40])
				sectorsWritten := binary.LittleEndian.Uint16(val[candidate+16 : candidate+18])
				out[e.BtreeID] = RootPointer{MinKey: minKey, Ptr: ptr, SectorsWritten: sectorsWritten}
				break
			}
			candidate += btreePtrV2FixedLen
		}
	}
	return out, nil
}

func decodeBpos(b []byte) types.Bpos {
	return types.Bpos{
		Snapshot: binary.LittleEndian.Uint32(b[0:4]),
		Offset:   binary.LittleEndian.Uint64(b[4:12]),
		Inode:    binary.LittleEndian.Uint64(b[12:20]),
	}
}
