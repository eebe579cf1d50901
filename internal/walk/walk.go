// Package walk implements the generic "sibling walker" used throughout the
// bcachefs on-disk format: a run of variable-length records, each
// beginning with a small length-in-u64s field that gives the offset of the
// next record. Superblock fields, jset entries and packed bkeys are all
// instances of the same walk, parametrized only by the width (in bytes) of
// that leading length field and a bias added to it before converting to
// bytes.
package walk

import (
	"fmt"

	"github.com/bcachefsreader/bcachefs/internal/byteio"
	"github.com/bcachefsreader/bcachefs/internal/types"
)

// Params describes one instance of the sibling-walk pattern.
type Params struct {
	// WidthBytes is the byte width of the leading length field (1, 2 or 4).
	WidthBytes int
	// Bias is added to the decoded length before converting to bytes, to
	// account for whether the length field covers just the record body or
	// the whole record including its own header.
	Bias int
}

// Superblock fields: a 32-bit u64s length, no bias (u64s already counts the
// whole field including its header).
var SbFields = Params{WidthBytes: 4, Bias: 0}

// Jset entries: a 16-bit u64s length, biased by 1 (u64s counts the entry
// body in units of u64, excluding the first u64 of its own header).
var JsetEntries = Params{WidthBytes: 2, Bias: 1}

// Bkeys: an 8-bit u64s length, no bias (u64s counts the whole packed key
// including its header byte).
var Bkeys = Params{WidthBytes: 1, Bias: 0}

// Next returns the byte offset of the record following the one starting at
// offset, by reading a p.WidthBytes length field at that offset and adding
// (length+p.Bias)*types.U. It reports ok=false with a nil error when the
// length field itself would not fit before end, and returns an error when
// the next offset would run past end.
func Next(data []byte, offset int, end int, p Params) (next int, ok bool, err error) {
	if offset < 0 || offset+p.WidthBytes > end || end > len(data) {
		return 0, false, nil
	}
	v := byteio.NewView(data)
	length, err := v.UintLE(offset, p.WidthBytes)
	if err != nil {
		return 0, false, fmt.Errorf("walk: reading length field at %d: %w", offset, err)
	}
	next = offset + (int(length)+p.Bias)*types.U
	if next > end {
		return 0, false, fmt.Errorf("walk: record at %d overruns region end %d", offset, end)
	}
	return next, true, nil
}

// ForEach walks the [start, end) region in data, invoking fn with the
// offset of each record until Next reports no further record (either
// because the next offset would equal end, or the length field reads as
// the walk's natural terminator). fn returns false to stop early.
func ForEach(data []byte, start, end int, p Params, fn func(offset int) (cont bool, err error)) error {
	offset := start
	for offset < end {
		cont, err := fn(offset)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		next, ok, err := Next(data, offset, end, p)
		if err != nil {
			return err
		}
		if !ok || next <= offset {
			return nil
		}
		offset = next
	}
	return nil
}
