// Package bcachefs is a read-only decoder for bcachefs filesystem images.
// It opens an on-disk image, walks its superblock and clean-shutdown
// journal snapshot to find each btree's root, and exposes enumeration and
// directed point lookup over the extents, inodes, and dirents trees.
//
// This reader never mounts, replays a journal, or writes anything back; it
// only requires that the image was unmounted cleanly. See the internal
// packages for the on-disk format (internal/types), the bset merge and
// btree_ptr_v2 descent engine (internal/iterator), and the three record
// projections this package exposes (internal/record).
package bcachefs
