package bcachefs

import (
	"github.com/bcachefsreader/bcachefs/internal/btree"
	"github.com/bcachefsreader/bcachefs/internal/superblock"
	"github.com/bcachefsreader/bcachefs/internal/varint"
)

// Error kinds exposed by this package (§7). NotFound is conveyed by a
// (value, false) return rather than one of these — a point-lookup miss is
// not itself an error.
var (
	ErrBadSuperblock            = superblock.ErrBadSuperblock
	ErrNotClean                 = superblock.ErrNotClean
	ErrNoSuchTree               = superblock.ErrNoSuchTree
	ErrTruncatedNode            = btree.ErrTruncatedNode
	ErrBadBkeyFormat            = btree.ErrBadBkeyFormat
	ErrUnsupportedInodeEncoding = varint.ErrUnsupportedInodeEncoding
	ErrTruncatedInode           = varint.ErrTruncatedInode
)
