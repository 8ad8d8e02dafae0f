// Package segment implements the immutable, page-structured on-disk
// segment files: the flat SortedSegment and the static B+-tree-shaped
// BSSTSegment, their bottom-up construction, and their point-lookup and
// range-scan readers.
package segment

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nyasuto/kvengine/internal/page"
)

// Format selects which on-disk layout a segment is written in.
type Format int

const (
	// Sorted is the flat, binary-searched SortedSegment layout.
	Sorted Format = iota
	// BSST is the static B+-tree-shaped BSSTSegment layout.
	BSST
	// LSM is the leveled format: segments are written in the BSST
	// on-disk layout (hence no distinct name prefix of its own) but,
	// unlike BSST, flushes trigger compaction and the level map is
	// persisted across Close/Open.
	LSM
)

const (
	sortedPrefix = "SST_"
	bsstPrefix   = "BSST_"
	suffix       = ".bin"
)

var nameCounter uint64

// newName returns a monotonically increasing, timestamp-suffixed
// segment file name: lexicographic sort of generated names always
// equals creation order, even for names minted within the same
// nanosecond, because the sequence counter breaks ties.
func newName(prefix string) string {
	seq := atomic.AddUint64(&nameCounter, 1)
	ns := time.Now().UnixNano()
	return fmt.Sprintf("%s%020d_%010d%s", prefix, ns, seq, suffix)
}

// NewSortedName mints a fresh SortedSegment file name.
func NewSortedName() string { return newName(sortedPrefix) }

// NewBSSTName mints a fresh BSSTSegment file name.
func NewBSSTName() string { return newName(bsstPrefix) }

// FormatOf inspects a segment's file name and reports its Format.
func FormatOf(name string) (Format, bool) {
	switch {
	case strings.HasPrefix(name, bsstPrefix):
		return BSST, true
	case strings.HasPrefix(name, sortedPrefix):
		return Sorted, true
	default:
		return 0, false
	}
}

// ListSegments enumerates *.bin files directly under dir, sorted
// ascending by name (age order: oldest first, newest last).
func ListSegments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("segment: list %s: %w", dir, err)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names, nil
}

// Metadata is the BSSTSegment page-0 header: 8 little-endian int64
// fields in the first 64 bytes, the rest of the page zero-filled.
type Metadata struct {
	EntriesOffset int64
	FilterOffset  int64
	SeedsOffset   int64
	BitsPerEntry  int64
	NumEntries    int64
	FilterLength  int64
	NumSeeds      int64
	FileSize      int64
}

const metadataFieldCount = 8

// Encode serializes m into a page.Size-byte, zero-padded page-0 buffer.
// Each field is a single little-endian int64, not a (key,value) pair,
// so it is written directly rather than through the page.Entry codec.
func (m Metadata) Encode() []byte {
	buf := make([]byte, page.Size)
	fields := [metadataFieldCount]int64{
		m.EntriesOffset, m.FilterOffset, m.SeedsOffset, m.BitsPerEntry,
		m.NumEntries, m.FilterLength, m.NumSeeds, m.FileSize,
	}
	off := 0
	for _, v := range fields {
		putInt64(buf[off:], v)
		off += 8
	}
	return buf
}

// DecodeMetadata reads a page.Size-byte page-0 buffer into a Metadata.
func DecodeMetadata(buf []byte) Metadata {
	vals := make([]int64, metadataFieldCount)
	for i := range vals {
		vals[i] = getInt64(buf[i*8:])
	}
	return Metadata{
		EntriesOffset: vals[0],
		FilterOffset:  vals[1],
		SeedsOffset:   vals[2],
		BitsPerEntry:  vals[3],
		NumEntries:    vals[4],
		FilterLength:  vals[5],
		NumSeeds:      vals[6],
		FileSize:      vals[7],
	}
}

func putInt64(buf []byte, v int64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(v) >> (8 * i))
	}
}

func getInt64(buf []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(buf[i]) << (8 * i)
	}
	return int64(u)
}

// PageID returns the buffer-pool cache key for a page at byte offset
// off within segment name.
func PageID(name string, off int64) string {
	return name + "#" + strconv.FormatInt(off, 10)
}
