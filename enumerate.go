package bcachefs

import (
	"github.com/bcachefsreader/bcachefs/internal/iterator"
	"github.com/bcachefsreader/bcachefs/internal/record"
	"github.com/bcachefsreader/bcachefs/internal/types"
)

// Extent, Inode, and Dirent are the three record types this reader
// projects decoded keys into (§4.9).
type (
	Extent = record.Extent
	Inode  = record.Inode
	Dirent = record.Dirent
)

// RecordKind tags which of Extent, Inode, or Dirent a Record holds.
type RecordKind int

const (
	KindExtent RecordKind = iota
	KindInode
	KindDirent
)

// Record is one item yielded by Iterator.Next, tagged by Kind; only the
// field matching Kind is populated.
type Record struct {
	Kind   RecordKind
	Extent Extent
	Inode  Inode
	Dirent Dirent
}

// Btree id constants, re-exported for callers passing a tree to Iter.
const (
	TreeExtents = types.BtreeIDExtents
	TreeInodes  = types.BtreeIDInodes
	TreeDirents = types.BtreeIDDirents
)

// Iterator enumerates one btree's live keys in strictly increasing order,
// projected into the record type that tree holds.
type Iterator struct {
	tree uint8
	it   *iterator.Iter
}

// Iter starts enumeration of tree (one of TreeExtents, TreeInodes,
// TreeDirents) from its resolved root node.
func (img *Image) Iter(tree uint8) (*Iterator, error) {
	rp, err := img.rootPointer(tree)
	if err != nil {
		return nil, err
	}
	it, err := iterator.New(img, img.blockSize, rp.Ptr.OffsetSectors()*512, rp.SectorsWritten)
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: tree, it: it}, nil
}

// Clone returns an independent iterator over the same remaining state.
func (it *Iterator) Clone() *Iterator {
	return &Iterator{tree: it.tree, it: it.it.Clone()}
}

// Close releases every node buffer this iterator owns.
func (it *Iterator) Close() {
	it.it.Close()
}

// Next returns the next record this tree's keys project into, skipping
// any live key that isn't one of that tree's own record types (a
// housekeeping key type such as discard). ok is false once enumeration is
// exhausted.
func (it *Iterator) Next() (Record, bool, error) {
	for {
		res, ok, err := it.it.Next()
		if err != nil {
			return Record{}, false, err
		}
		if !ok {
			return Record{}, false, nil
		}
		switch it.tree {
		case types.BtreeIDExtents:
			e, ok := record.MakeExtent(res.Key, res.Data, res.NodeOffset)
			if !ok {
				continue
			}
			return Record{Kind: KindExtent, Extent: e}, true, nil
		case types.BtreeIDInodes:
			inode, ok, err := record.MakeInode(res.Key, res.Data)
			if err != nil {
				return Record{}, false, err
			}
			if !ok {
				continue
			}
			return Record{Kind: KindInode, Inode: inode}, true, nil
		case types.BtreeIDDirents:
			d, ok := record.MakeDirent(res.Key, res.Data)
			if !ok {
				continue
			}
			return Record{Kind: KindDirent, Dirent: d}, true, nil
		default:
			continue
		}
	}
}
