package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nyasuto/kvengine/internal/bloom"
	"github.com/nyasuto/kvengine/internal/bufferpool"
	"github.com/nyasuto/kvengine/internal/page"
)

// Reader provides point lookups and range scans over one immutable
// on-disk segment, routing every page fetch through a shared buffer
// pool.
type Reader struct {
	Name   string
	format Format
	file   *os.File
	pool   *bufferpool.Pool

	meta   Metadata // BSST only
	filter *bloom.Filter
	pages  int64 // Sorted only: number of pages
}

// Open opens the segment named name under dir for reading.
func Open(dir, name string, pool *bufferpool.Pool) (*Reader, error) {
	format, ok := FormatOf(name)
	if !ok {
		return nil, fmt.Errorf("segment: %w: unrecognized segment name %q", ErrCorruption, name)
	}

	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}

	r := &Reader{Name: name, format: format, file: f, pool: pool}

	switch format {
	case Sorted:
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("segment: stat %s: %w", path, err)
		}
		r.pages = info.Size() / page.Size
	case BSST:
		if err := r.loadMetadata(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }

func (r *Reader) loadMetadata() error {
	buf := make([]byte, page.Size)
	if _, err := r.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("segment: %w: read metadata of %s: %v", ErrCorruption, r.Name, err)
	}
	r.meta = DecodeMetadata(buf)

	filterBytes := r.meta.FilterLength * 8
	filterBuf := make([]byte, page.AlignUp(filterBytes))
	if len(filterBuf) > 0 {
		if _, err := r.file.ReadAt(filterBuf, r.meta.FilterOffset); err != nil {
			return fmt.Errorf("segment: %w: read filter of %s: %v", ErrCorruption, r.Name, err)
		}
	}
	words := decodeWords(filterBuf[:filterBytes])

	seedsBuf := make([]byte, page.AlignUp(r.meta.NumSeeds*4))
	if len(seedsBuf) > 0 {
		if _, err := r.file.ReadAt(seedsBuf, r.meta.SeedsOffset); err != nil {
			return fmt.Errorf("segment: %w: read seeds of %s: %v", ErrCorruption, r.Name, err)
		}
	}
	seeds := decodeSeeds(seedsBuf[:r.meta.NumSeeds*4])

	filter, err := bloom.FromState(words, r.meta.NumEntries, r.meta.BitsPerEntry, seeds)
	if err != nil {
		return fmt.Errorf("segment: %w: rebuild filter of %s: %v", ErrCorruption, r.Name, err)
	}
	r.filter = filter
	return nil
}

func decodeWords(buf []byte) []uint64 {
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = uint64(getInt64(buf[i*8:]))
	}
	return words
}

func decodeSeeds(buf []byte) []uint32 {
	seeds := make([]uint32, len(buf)/4)
	for i := range seeds {
		seeds[i] = uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
	}
	return seeds
}

// fetchPage returns the decoded entries at byte offset off, consulting
// and populating the buffer pool when one is configured.
func (r *Reader) fetchPage(off int64) ([]page.Entry, error) {
	id := PageID(r.Name, off)
	if r.pool != nil {
		if entries, ok := r.pool.Lookup(id); ok {
			return entries, nil
		}
	}

	buf := make([]byte, page.Size)
	if _, err := r.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("segment: %w: read page at %d in %s: %v", ErrCorruption, off, r.Name, err)
	}
	entries := page.UnpackPage(buf)

	if r.pool != nil {
		r.pool.Insert(id, entries)
	}
	return entries, nil
}

// Get performs a point lookup for key.
func (r *Reader) Get(key int64) (int64, bool, error) {
	switch r.format {
	case Sorted:
		return r.getSorted(key)
	default:
		return r.getBSST(key)
	}
}

func (r *Reader) getSorted(key int64) (int64, bool, error) {
	lo, hi := int64(0), r.pages-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		entries, err := r.fetchPage(mid * page.Size)
		if err != nil {
			return 0, false, err
		}
		if len(entries) == 0 {
			hi = mid - 1
			continue
		}
		if key < entries[0].Key {
			hi = mid - 1
			continue
		}
		if key > entries[len(entries)-1].Key {
			lo = mid + 1
			continue
		}
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= key })
		if i < len(entries) && entries[i].Key == key {
			return entries[i].Value, true, nil
		}
		return 0, false, nil
	}
	return 0, false, nil
}

func (r *Reader) getBSST(key int64) (int64, bool, error) {
	if !r.filter.Includes(key) {
		return 0, false, nil
	}

	offset := int64(page.Size)
	for {
		entries, err := r.fetchPage(offset)
		if err != nil {
			return 0, false, err
		}

		if offset >= r.meta.EntriesOffset {
			i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= key })
			if i < len(entries) && entries[i].Key == key {
				return entries[i].Value, true, nil
			}
			return 0, false, nil
		}

		i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= key })
		if i == len(entries) {
			return 0, false, nil
		}
		offset = entries[i].Value
	}
}

// All returns every entry in the segment, ascending by key. It is used
// by compaction, which always merges a segment's full contents.
func (r *Reader) All() ([]page.Entry, error) {
	switch r.format {
	case Sorted:
		var out []page.Entry
		for i := int64(0); i < r.pages; i++ {
			entries, err := r.fetchPage(i * page.Size)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		}
		return out, nil
	default:
		var out []page.Entry
		for offset := r.meta.EntriesOffset; offset < r.meta.FilterOffset; offset += page.Size {
			entries, err := r.fetchPage(offset)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				break
			}
			out = append(out, entries...)
		}
		return out, nil
	}
}

// Scan returns every entry with lo <= key <= hi, ascending by key.
// Tombstones (value == 0) are included.
func (r *Reader) Scan(lo, hi int64) ([]page.Entry, error) {
	switch r.format {
	case Sorted:
		return r.scanSorted(lo, hi)
	default:
		return r.scanBSST(lo, hi)
	}
}

func (r *Reader) scanSorted(lo, hi int64) ([]page.Entry, error) {
	var out []page.Entry
	for i := int64(0); i < r.pages; i++ {
		entries, err := r.fetchPage(i * page.Size)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		if entries[len(entries)-1].Key < lo {
			continue
		}
		if entries[0].Key > hi {
			break
		}
		for _, e := range entries {
			if e.Key >= lo && e.Key <= hi {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r *Reader) scanBSST(lo, hi int64) ([]page.Entry, error) {
	// Descend to the leaf that would hold lo, then walk leaves left to
	// right collecting entries until a key exceeds hi.
	offset := int64(page.Size)
	for offset < r.meta.EntriesOffset {
		entries, err := r.fetchPage(offset)
		if err != nil {
			return nil, err
		}
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= lo })
		if i == len(entries) {
			i = len(entries) - 1
		}
		offset = entries[i].Value
	}

	var out []page.Entry
	for offset < r.meta.FilterOffset {
		entries, err := r.fetchPage(offset)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		done := false
		for _, e := range entries {
			if e.Key > hi {
				done = true
				break
			}
			if e.Key >= lo {
				out = append(out, e)
			}
		}
		if done {
			break
		}
		offset += page.Size
	}
	return out, nil
}
