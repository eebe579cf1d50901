// Package types holds the on-disk structure and constant definitions for
// the bcachefs filesystem format. This package is based on the bcachefs
// kernel/userspace on-disk format as captured by the bcachefs.h reference
// used by the libbenzina/bcachefs reader.
package types

import "github.com/google/uuid"

// U is the width in bytes of a single "u64s" unit. Every length-in-u64s
// field in the on-disk format is a count of these units.
const U = 8

// UUID is a 16-byte on-disk identifier, decoded into a google/uuid.UUID so
// callers get String() and equality for free instead of a bare [16]byte.
type UUID = uuid.UUID

// Superblock field types (struct bch_sb_field_type).
const (
	SbFieldJournal             = 0
	SbFieldMembers             = 1
	SbFieldCrypt               = 2
	SbFieldReplicasV0          = 3
	SbFieldQuota               = 4
	SbFieldDiskGroups          = 5
	SbFieldClean               = 6
	SbFieldReplicas            = 7
	SbFieldJournalSeqBlacklist = 8
)

// Journal-set entry types (struct jset_entry_type).
const (
	JsetEntryBtreeKeys          = 0
	JsetEntryBtreeRoot          = 1
	JsetEntryPrioPtrs           = 2
	JsetEntryBlacklist          = 3
	JsetEntryBlacklistV2        = 4
	JsetEntryUsage              = 5
	JsetEntryDataUsage          = 6
	JsetEntryClock              = 7
	JsetEntryDevUsage           = 8
)

// Btree identifiers (enum btree_id).
const (
	BtreeIDExtents = 0
	BtreeIDInodes  = 1
	BtreeIDDirents = 2
	BtreeIDXattrs  = 3
	BtreeIDAlloc   = 4
	BtreeIDQuotas  = 5
	BtreeIDStripes = 6
	BtreeIDReflink = 7
)

// Key value types (enum bch_bkey_type).
const (
	KeyTypeDeleted             = 0
	KeyTypeDiscard             = 1
	KeyTypeError               = 2
	KeyTypeCookie              = 3
	KeyTypeHashWhiteout        = 4
	KeyTypeBtreePtr            = 5
	KeyTypeExtent              = 6
	KeyTypeReservation         = 7
	KeyTypeInode               = 8
	KeyTypeInodeGeneration     = 9
	KeyTypeDirent              = 10
	KeyTypeXattr               = 11
	KeyTypeAlloc               = 12
	KeyTypeQuota               = 13
	KeyTypeStripe              = 14
	KeyTypeReflinkP            = 15
	KeyTypeReflinkV            = 16
	KeyTypeInlineData          = 17
	KeyTypeBtreePtrV2          = 18
	KeyTypeIndirectInlineData  = 19
	KeyTypeAllocV2             = 20
)

// RootIno is the well-known inode number of the filesystem root.
const RootIno = 4096

// RootDirentType is the directory-entry type value used by the synthetic
// root dirent (DT_DIR).
const RootDirentType = 4

// BchInodeFlagNewVarint marks an inode as using the varint-packed field
// encoding this reader understands; inodes without it are rejected.
const BchInodeFlagNewVarint = uint32(1) << 31

// JsetMagicXor and BsetMagicXor are the fixed constants XORed with the low
// 8 bytes of the superblock UUID to derive the per-filesystem jset/bset
// magic numbers.
const (
	JsetMagicXor = uint64(0x245235c1a3625032)
	BsetMagicXor = uint64(0x90135c78b99e07f5)
)

// BcacheMagic is the fixed 16-byte magic every bcachefs superblock starts
// with.
var BcacheMagic = UUID{0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca, 0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81}

// Bpos is a 20-byte on-disk position key, stored in its exact in-memory
// layout (snapshot, offset, inode) rather than logical reading order.
type Bpos struct {
	Snapshot uint32
	Offset   uint64
	Inode    uint64
}

// Less reports whether p sorts strictly before o under bcachefs's (inode,
// offset, snapshot) total order.
func (p Bpos) Less(o Bpos) bool {
	if p.Inode != o.Inode {
		return p.Inode < o.Inode
	}
	if p.Offset != o.Offset {
		return p.Offset < o.Offset
	}
	return p.Snapshot < o.Snapshot
}

// LessEq reports p <= o under the same order as Less.
func (p Bpos) LessEq(o Bpos) bool {
	return p == o || p.Less(o)
}

// BVersion is a 12-byte on-disk (hi, lo) version pair.
type BVersion struct {
	Hi uint32
	Lo uint64
}

// ExtentPtr is a single packed 8-byte device pointer.
//
// Bit layout (from LSB): type:1 cached:1 unused:1 reservation:1 offset:44
// dev:8 gen:8.
type ExtentPtr uint64

func (p ExtentPtr) Type() uint64        { return uint64(p) & 0x1 }
func (p ExtentPtr) Cached() bool        { return (uint64(p)>>1)&0x1 != 0 }
func (p ExtentPtr) Unused() bool        { return (uint64(p)>>2)&0x1 != 0 }
func (p ExtentPtr) Reservation() bool   { return (uint64(p)>>3)&0x1 != 0 }
func (p ExtentPtr) OffsetSectors() uint64 { return (uint64(p) >> 4) & ((1 << 44) - 1) }
func (p ExtentPtr) Dev() uint8         { return uint8((uint64(p) >> 48) & 0xFF) }
func (p ExtentPtr) Gen() uint8         { return uint8((uint64(p) >> 56) & 0xFF) }

// BtreeNodePtrV2 is one candidate root pointer recorded in a btree_root
// jset_entry.
type BtreeNodePtrV2 struct {
	MemPtr         uint64
	Seq            uint64
	SectorsWritten uint16
	Flags          uint16
	MinKey         Bpos
	Ptrs           []ExtentPtr
}

// BkeyFormat describes how a node's packed keys encode the six canonical
// fields (inode, offset, snapshot, size, version hi, version lo).
type BkeyFormat struct {
	KeyU64s      uint8
	NrFields     uint8
	BitsPerField [6]uint8
	FieldOffset  [6]uint64
}

// Canonical field indices within BkeyFormat, in the order the packed
// decoder walks them (from the tail of the fixed-size key area backward).
const (
	FieldInode = iota
	FieldOffset
	FieldSnapshot
	FieldSize
	FieldVersionHi
	FieldVersionLo
)

// BkeyTuple is the decoded six-field canonical key.
type BkeyTuple struct {
	Inode      uint64
	Offset     uint64
	Snapshot   uint32
	Size       uint32
	VersionHi  uint32
	VersionLo  uint64
}

// Pos returns the (inode, offset, snapshot) position used for ordering and
// lookups.
func (t BkeyTuple) Pos() Bpos {
	return Bpos{Snapshot: t.Snapshot, Offset: t.Offset, Inode: t.Inode}
}
