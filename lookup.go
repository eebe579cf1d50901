package bcachefs

import (
	"github.com/bcachefsreader/bcachefs/internal/iterator"
	"github.com/bcachefsreader/bcachefs/internal/record"
	"github.com/bcachefsreader/bcachefs/internal/siphash"
	"github.com/bcachefsreader/bcachefs/internal/types"
)

// FindInode looks up an inode by number. The root inode (4096) is resolved
// at Open and returned from a cached copy rather than re-descending the
// tree on every call.
func (img *Image) FindInode(inum uint64) (Inode, bool, error) {
	if img.rootResolved && inum == types.RootIno {
		return img.rootInode, true, nil
	}
	return img.findInodeUncached(inum)
}

func (img *Image) findInodeUncached(inum uint64) (Inode, bool, error) {
	rp, err := img.rootPointer(types.BtreeIDInodes)
	if err != nil {
		return Inode{}, false, err
	}
	ref := types.Bpos{Inode: 0, Offset: inum}
	res, ok, err := iterator.Find(img, img.blockSize, types.BtreeIDInodes, rp.Ptr.OffsetSectors()*512, rp.SectorsWritten, ref)
	if err != nil || !ok {
		return Inode{}, false, err
	}
	inode, ok, err := record.MakeInode(res.Key, res.Data)
	if err != nil || !ok {
		return Inode{}, false, err
	}
	return inode, true, nil
}

// FindDirent looks up a directory entry by parent inode and name. If
// hashSeed is 0, the parent's hash seed is first recovered via FindInode.
// An empty name always returns the synthetic root dirent (§6), regardless
// of parentInode — matching the single-argument "name == \"\"" case the
// reference interface exposes.
func (img *Image) FindDirent(parentInode uint64, hashSeed uint64, name string) (Dirent, bool, error) {
	if name == "" {
		return img.rootDirent, true, nil
	}
	if hashSeed == 0 {
		parent, ok, err := img.FindInode(parentInode)
		if err != nil {
			return Dirent{}, false, err
		}
		if !ok {
			return Dirent{}, false, nil
		}
		hashSeed = parent.HashSeed
	}
	if hashSeed == 0 {
		return Dirent{}, false, nil
	}

	offset := siphash.Digest([]byte(name), hashSeed, 0) >> 1
	rp, err := img.rootPointer(types.BtreeIDDirents)
	if err != nil {
		return Dirent{}, false, err
	}
	ref := types.Bpos{Inode: parentInode, Offset: offset}
	res, ok, err := iterator.Find(img, img.blockSize, types.BtreeIDDirents, rp.Ptr.OffsetSectors()*512, rp.SectorsWritten, ref)
	if err != nil || !ok {
		return Dirent{}, false, err
	}
	d, ok := record.MakeDirent(res.Key, res.Data)
	if !ok {
		return Dirent{}, false, nil
	}
	return d, true, nil
}

// FindExtent looks up the extent of inum whose range starts in the sector
// containing fileByteOffset; an extent that covers fileByteOffset but starts
// in an earlier sector is not returned. The reference offset passed to descent is fileByteOffset/512 — a plain
// sector-floor conversion, unlike the reference reader's formula, which
// adds the unconverted byte remainder; that appears to be a bug, since it
// would violate this reader's own containment property (§8: "a record
// whose byte range contains file_offset"), so the corrected conversion is
// used here instead (see DESIGN.md).
func (img *Image) FindExtent(inum uint64, fileByteOffset uint64) (Extent, bool, error) {
	rp, err := img.rootPointer(types.BtreeIDExtents)
	if err != nil {
		return Extent{}, false, err
	}
	ref := types.Bpos{Inode: inum, Offset: fileByteOffset / 512}
	res, ok, err := iterator.Find(img, img.blockSize, types.BtreeIDExtents, rp.Ptr.OffsetSectors()*512, rp.SectorsWritten, ref)
	if err != nil || !ok {
		return Extent{}, false, err
	}
	e, ok := record.MakeExtent(res.Key, res.Data, res.NodeOffset)
	if !ok {
		return Extent{}, false, nil
	}
	return e, true, nil
}
