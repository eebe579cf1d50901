package bcachefs

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/bcachefsreader/bcachefs/internal/byteio"
	"github.com/bcachefsreader/bcachefs/internal/config"
	"github.com/bcachefsreader/bcachefs/internal/superblock"
	"github.com/bcachefsreader/bcachefs/internal/types"
)

// Image is an opened bcachefs image: a file handle, its parsed superblock
// and clean-shutdown journal snapshot, and the resolved root pointer for
// each btree recorded there.
type Image struct {
	file      *os.File
	sb        *superblock.Superblock
	clean     *superblock.Clean
	roots     map[uint8]superblock.RootPointer
	blockSize uint64
	nodeSize  uint64
	opts      config.OpenOptions

	mu               sync.RWMutex
	nodeCache        map[uint64][]byte
	currentCacheSize int

	rootResolved bool
	rootInode    Inode
	rootDirent   Dirent
}

// Open opens path with the default OpenOptions (see config.Default).
func Open(path string) (*Image, error) {
	return OpenWithOptions(path, config.Default())
}

// OpenWithOptions opens path, parses its superblock and clean field,
// resolves every btree's root pointer, and eagerly resolves the root
// inode the way this reader's reference implementation does at open time.
func OpenWithOptions(path string, opts config.OpenOptions) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening image: %v", ErrBadSuperblock, err)
	}

	head := make([]byte, superblock.FieldsOffset)
	if _, err := file.ReadAt(head, superblock.SbOffset); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: reading fixed header: %v", ErrBadSuperblock, err)
	}
	u64s := binary.LittleEndian.Uint32(head[124:128])
	total := superblock.FieldsOffset + int(u64s)*types.U
	full := make([]byte, total)
	if _, err := file.ReadAt(full, superblock.SbOffset); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: reading sb-fields: %v", ErrBadSuperblock, err)
	}

	sb, err := superblock.Parse(full)
	if err != nil {
		file.Close()
		return nil, err
	}

	clean, err := sb.LoadClean()
	if err != nil {
		file.Close()
		return nil, err
	}

	entries, err := clean.Entries(types.JsetEntryBtreeRoot)
	if err != nil {
		file.Close()
		return nil, err
	}
	roots, err := superblock.RootPointers(entries)
	if err != nil {
		file.Close()
		return nil, err
	}

	nodeSize := byteio.Bits(sb.Flags[0], 12, 16) * 512
	if nodeSize == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: node size is zero", ErrBadSuperblock)
	}

	img := &Image{
		file:      file,
		sb:        sb,
		clean:     clean,
		roots:     roots,
		blockSize: sb.BlockSizeBytes(),
		nodeSize:  nodeSize,
		opts:      opts,
		nodeCache: make(map[uint64][]byte),
	}

	rootInode, ok, err := img.findInodeUncached(types.RootIno)
	if err != nil {
		img.Close()
		return nil, err
	}
	if !ok || rootInode.HashSeed == 0 {
		img.Close()
		return nil, fmt.Errorf("%w: root inode has no hash seed", ErrBadSuperblock)
	}
	img.rootInode = rootInode
	img.rootDirent = Dirent{
		ParentInode: types.RootIno,
		Inode:       types.RootIno,
		Type:        types.RootDirentType,
		Name:        nil,
	}
	img.rootResolved = true

	return img, nil
}

// Close releases the image's file handle. Node buffers an Iterator has
// already read stay valid, but an Iterator that later descends into a node
// not yet read (and not held in the node cache) fails with ErrTruncatedNode
// once the handle is closed.
func (img *Image) Close() error {
	return img.file.Close()
}

// Superblock exposes the parsed superblock for callers that want its raw
// fields (block size, magic, UUID, feature bits) without going through the
// record-projecting lookup API.
func (img *Image) Superblock() *superblock.Superblock {
	return img.sb
}

// NodeSize returns the filesystem's btree node size in bytes.
func (img *Image) NodeSize() uint64 {
	return img.nodeSize
}

func (img *Image) rootPointer(tree uint8) (superblock.RootPointer, error) {
	rp, ok := img.roots[tree]
	if !ok {
		return superblock.RootPointer{}, fmt.Errorf("%w: tree %d", ErrNoSuchTree, tree)
	}
	return rp, nil
}

// ReadNode implements iterator.Source: it reads sectorsWritten*512 bytes
// starting at image byte offset off into a buffer zero-padded out to the
// node size, consulting and populating a node cache bounded by
// OpenOptions.BlockCacheBytes and OpenOptions.NodeCacheSize the way the teacher's ContainerReader bounds
// its block cache.
func (img *Image) ReadNode(off uint64, sectorsWritten uint16) ([]byte, error) {
	img.mu.RLock()
	if cached, ok := img.nodeCache[off]; ok {
		img.mu.RUnlock()
		return append([]byte{}, cached...), nil
	}
	img.mu.RUnlock()

	buf := make([]byte, img.nodeSize)
	n := int(sectorsWritten) * 512
	if n > len(buf) {
		n = len(buf)
	}
	if n > 0 {
		if _, err := img.file.ReadAt(buf[:n], int64(off)); err != nil {
			return nil, fmt.Errorf("%w: reading node at %d: %v", ErrTruncatedNode, off, err)
		}
	}

	img.mu.Lock()
	img.cacheNode(off, buf)
	img.mu.Unlock()

	return append([]byte{}, buf...), nil
}

// cacheNode adds buf to the node cache, respecting OpenOptions.BlockCacheBytes
// and OpenOptions.NodeCacheSize.
// Must be called with mu held for writing.
func (img *Image) cacheNode(off uint64, buf []byte) {
	if img.opts.BlockCacheBytes <= 0 {
		return
	}
	size := len(buf)
	if img.currentCacheSize+size > img.opts.BlockCacheBytes ||
		(img.opts.NodeCacheSize > 0 && len(img.nodeCache) >= img.opts.NodeCacheSize) {
		img.nodeCache = make(map[uint64][]byte)
		img.currentCacheSize = 0
	}
	img.nodeCache[off] = append([]byte{}, buf...)
	img.currentCacheSize += size
}
