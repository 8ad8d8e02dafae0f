package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nyasuto/kvengine/internal/bloom"
	"github.com/nyasuto/kvengine/internal/page"
)

// DefaultBitsPerEntry is the bloom filter sizing used when a caller
// does not override it.
const DefaultBitsPerEntry = 10

// WriteSorted writes entries (already sorted ascending by key, as
// produced by a memtable flush or a compaction merge) as a flat
// SortedSegment: one page.PackPage per page.NumEntries chunk, no
// index or filter.
func WriteSorted(dir string, entries []page.Entry) (string, error) {
	name := NewSortedName()
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("segment: create %s: %w", path, err)
	}
	defer f.Close()

	for i := 0; i < len(entries); i += page.NumEntries {
		end := i + page.NumEntries
		if end > len(entries) {
			end = len(entries)
		}
		if _, err := f.Write(page.PackPage(entries[i:end])); err != nil {
			return "", fmt.Errorf("segment: write %s: %w", path, err)
		}
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("segment: sync %s: %w", path, err)
	}
	return name, nil
}

// WriteBSST writes entries (sorted ascending by key) as a static
// B+-tree-shaped BSSTSegment: page 0 holds the Metadata header,
// followed by the internal levels and leaf region in breadth-first
// order, followed by the bloom filter bit array and its hash seeds.
func WriteBSST(dir string, entries []page.Entry, bpe int64) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("segment: %w: cannot write an empty BSST segment", ErrInvalidArgument)
	}

	name := NewBSSTName()
	path := filepath.Join(dir, name)

	filter, err := bloom.New(int64(len(entries)), bpe)
	if err != nil {
		return "", fmt.Errorf("segment: build filter for %s: %w", path, err)
	}
	for _, e := range entries {
		filter.Insert(e.Key)
	}

	root := buildTree(entries)
	nodes := assignOffsets(root, page.Size)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("segment: create %s: %w", path, err)
	}
	defer f.Close()

	// Page 0 is reserved for the metadata header; the real header is
	// seeked back and rewritten once every later offset is known.
	if _, err := f.Write(make([]byte, page.Size)); err != nil {
		return "", fmt.Errorf("segment: write %s: %w", path, err)
	}

	for _, n := range nodes {
		if _, err := f.Write(n.pack()); err != nil {
			return "", fmt.Errorf("segment: write %s: %w", path, err)
		}
	}

	var entriesOffset int64
	for _, n := range nodes {
		if n.leaf {
			entriesOffset = n.offset
			break
		}
	}
	filterOffset := nodes[len(nodes)-1].offset + page.Size

	filterBuf := encodeWords(filter.Words())
	if _, err := f.Write(filterBuf); err != nil {
		return "", fmt.Errorf("segment: write %s: %w", path, err)
	}
	filterPadded := page.AlignUp(int64(len(filterBuf)))
	if pad := filterPadded - int64(len(filterBuf)); pad > 0 {
		if _, err := f.Write(make([]byte, pad)); err != nil {
			return "", fmt.Errorf("segment: write %s: %w", path, err)
		}
	}

	seedsOffset := filterOffset + filterPadded
	seedsBuf := encodeSeeds(filter.Seeds())
	if _, err := f.Write(seedsBuf); err != nil {
		return "", fmt.Errorf("segment: write %s: %w", path, err)
	}
	seedsPadded := page.AlignUp(int64(len(seedsBuf)))
	if pad := seedsPadded - int64(len(seedsBuf)); pad > 0 {
		if _, err := f.Write(make([]byte, pad)); err != nil {
			return "", fmt.Errorf("segment: write %s: %w", path, err)
		}
	}

	fileSize := seedsOffset + seedsPadded

	meta := Metadata{
		EntriesOffset: entriesOffset,
		FilterOffset:  filterOffset,
		SeedsOffset:   seedsOffset,
		BitsPerEntry:  bpe,
		NumEntries:    int64(len(entries)),
		FilterLength:  int64(len(filter.Words())),
		NumSeeds:      int64(len(filter.Seeds())),
		FileSize:      fileSize,
	}
	if _, err := f.WriteAt(meta.Encode(), 0); err != nil {
		return "", fmt.Errorf("segment: write metadata %s: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("segment: sync %s: %w", path, err)
	}
	return name, nil
}

func encodeWords(words []uint64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		putInt64(buf[i*8:], int64(w))
	}
	return buf
}

func encodeSeeds(seeds []uint32) []byte {
	buf := make([]byte, len(seeds)*4)
	for i, s := range seeds {
		buf[i*4] = byte(s)
		buf[i*4+1] = byte(s >> 8)
		buf[i*4+2] = byte(s >> 16)
		buf[i*4+3] = byte(s >> 24)
	}
	return buf
}
