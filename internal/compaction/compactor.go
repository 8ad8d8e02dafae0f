// Package compaction implements the synchronous, two-way merge that
// keeps every LSM level at at most one segment: whenever a level holds
// two or more segments, the two oldest are merged into a single fresh
// BSSTSegment one level down.
package compaction

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nyasuto/kvengine/internal/bufferpool"
	"github.com/nyasuto/kvengine/internal/page"
	"github.com/nyasuto/kvengine/internal/segment"
)

// Config holds the compactor's dependencies.
type Config struct {
	Dir          string
	BitsPerEntry int64
	Pool         *bufferpool.Pool // may be nil if buffer pooling is disabled
}

// Compactor merges pairs of segments on a level, oldest-wins-removed,
// newer-wins-on-collision.
type Compactor struct {
	cfg Config
}

// New creates a Compactor per cfg.
func New(cfg Config) *Compactor {
	return &Compactor{cfg: cfg}
}

// Merge reads older and newer fully, resolves key collisions in favor
// of newer, writes the result as a fresh BSSTSegment, deletes both
// input files, and invalidates any of their pages cached in the
// buffer pool. It returns the merged segment's file name.
func (c *Compactor) Merge(older, newer string) (string, error) {
	oldEntries, err := c.readAll(older)
	if err != nil {
		return "", err
	}
	newEntries, err := c.readAll(newer)
	if err != nil {
		return "", err
	}

	merged := mergeNewerWins(oldEntries, newEntries)

	name, err := segment.WriteBSST(c.cfg.Dir, merged, c.cfg.BitsPerEntry)
	if err != nil {
		return "", fmt.Errorf("compaction: write merged segment: %w", err)
	}

	for _, old := range []string{older, newer} {
		c.invalidate(old)
		path := filepath.Join(c.cfg.Dir, old)
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("compaction: remove %s: %w", path, err)
		}
	}

	return name, nil
}

// readAll reads name without the buffer pool: its pages are invalidated
// right after the merge, and compaction reads never populate the cache.
func (c *Compactor) readAll(name string) ([]page.Entry, error) {
	r, err := segment.Open(c.cfg.Dir, name, nil)
	if err != nil {
		return nil, fmt.Errorf("compaction: open %s: %w", name, err)
	}
	defer r.Close()

	entries, err := r.All()
	if err != nil {
		return nil, fmt.Errorf("compaction: read %s: %w", name, err)
	}
	return entries, nil
}

// invalidate drops every buffer-pool page belonging to name. Pages are
// identified by "<segment-name>#<offset>", so invalidation must walk
// every offset that could have been cached rather than guessing a
// single stale key: the pool itself only exposes id-keyed removal, so
// the compactor stats the segment file to learn its page count.
func (c *Compactor) invalidate(name string) {
	if c.cfg.Pool == nil {
		return
	}
	path := filepath.Join(c.cfg.Dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	for off := int64(0); off < info.Size(); off += page.Size {
		c.cfg.Pool.Remove(segment.PageID(name, off))
	}
}

// mergeNewerWins performs the 2-way merge: on a key collision, the
// entry from newer wins and both inputs advance past it; tombstones
// (value == 0) pass through unchanged, since interpreting them is the
// database coordinator's job.
func mergeNewerWins(older, newer []page.Entry) []page.Entry {
	out := make([]page.Entry, 0, len(older)+len(newer))
	i, j := 0, 0
	for i < len(older) && j < len(newer) {
		switch {
		case older[i].Key < newer[j].Key:
			out = append(out, older[i])
			i++
		case older[i].Key > newer[j].Key:
			out = append(out, newer[j])
			j++
		default:
			out = append(out, newer[j])
			i++
			j++
		}
	}
	out = append(out, older[i:]...)
	out = append(out, newer[j:]...)
	return out
}
