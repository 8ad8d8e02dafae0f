// Package kvengine implements the Database Coordinator: the single
// entry point that owns the memtable, the buffer pool, the on-disk
// segment directory, and the LSM level map, and that sequences every
// Put/Get/Scan/Delete/Update against them.
package kvengine

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nyasuto/kvengine/internal/bufferpool"
	"github.com/nyasuto/kvengine/internal/compaction"
	"github.com/nyasuto/kvengine/internal/memtable"
	"github.com/nyasuto/kvengine/internal/page"
	"github.com/nyasuto/kvengine/internal/segment"
)

// Entry is a live (key, value) pair returned by Scan.
type Entry = page.Entry

const stateFileName = "lsm_tree_state.txt"

// Options configures a DB.
type Options struct {
	// MemtableCapacity is the number of entries the memtable holds
	// before it flushes synchronously to a new level-0 segment.
	MemtableCapacity int
	// BufferpoolCapacity is the number of pages the shared buffer pool
	// caches. 0 disables caching.
	BufferpoolCapacity int
	// BitsPerEntry sizes every BSSTSegment's bloom filter.
	BitsPerEntry int64
	// SegmentFormat selects the database's open-time mode: Sorted and
	// BSST each flush to a flat, never-compacted segment list (in the
	// SortedSegment or BSSTSegment layout respectively); LSM flushes to
	// the BSST layout but cascades compaction on every flush and
	// persists its level map across Close/Open.
	SegmentFormat segment.Format
}

// DefaultOptions returns the engine's default configuration.
func DefaultOptions() Options {
	return Options{
		MemtableCapacity:   1000,
		BufferpoolCapacity: 256,
		BitsPerEntry:       segment.DefaultBitsPerEntry,
		SegmentFormat:      segment.BSST,
	}
}

// DB is the single-threaded Database Coordinator.
type DB struct {
	dir  string
	opts Options

	pool      *bufferpool.Pool
	mt        *memtable.Memtable
	compactor *compaction.Compactor

	levels            [][]string // levels[i] holds level i's segment names, oldest first
	bufferpoolEnabled bool
}

// Open opens (creating if necessary) the database rooted at dir.
func Open(dir string, opts Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir %s: %v", ErrIO, dir, err)
	}

	pool := bufferpool.New(opts.BufferpoolCapacity)
	db := &DB{
		dir:               dir,
		opts:              opts,
		pool:              pool,
		bufferpoolEnabled: true,
		compactor:         compaction.New(compaction.Config{Dir: dir, BitsPerEntry: opts.BitsPerEntry, Pool: pool}),
	}

	if opts.SegmentFormat == segment.LSM {
		levels, err := db.loadAndClearState()
		if err != nil {
			return nil, err
		}
		db.levels = levels
	}

	// Enumerate the on-disk segment directory unconditionally: in LSM
	// mode this recovers anything the state file above didn't already
	// account for (e.g. segments written but not yet cascaded); in
	// Sorted/BSST mode, which never persists a level map, this is the
	// only way a reopened database finds its existing segments.
	names, err := segment.ListSegments(dir)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, segs := range db.levels {
		for _, s := range segs {
			known[s] = true
		}
	}
	var recovered []string
	for _, name := range names {
		if !known[name] {
			recovered = append(recovered, name)
		}
	}
	if len(recovered) > 0 {
		if len(db.levels) == 0 {
			db.levels = append(db.levels, nil)
		}
		db.levels[0] = append(db.levels[0], recovered...)
	}

	db.mt = memtable.New(memtable.Config{MaxEntries: opts.MemtableCapacity, Flush: db.flush})
	return db, nil
}

// Close flushes any buffered writes and, in LSM mode, persists the
// level map so the next Open can resume compaction bookkeeping.
func (db *DB) Close() error {
	if err := db.mt.Close(); err != nil {
		return fmt.Errorf("kvengine: close: flush memtable: %w", err)
	}
	if db.opts.SegmentFormat != segment.LSM {
		return nil
	}
	return db.saveState()
}

// Put inserts or overwrites key with value. key must not be 0: 0 is
// the reserved padding key. value == 0 is a tombstone; see Delete.
func (db *DB) Put(key, value int64) error {
	if key == 0 {
		return fmt.Errorf("%w: key must be non-zero (0 is reserved)", ErrInvalidArgument)
	}
	_, err := db.mt.Put(key, value)
	return err
}

// Delete removes key by writing a tombstone. Equivalent to Put(key, 0).
func (db *DB) Delete(key int64) error {
	return db.Put(key, 0)
}

// Update overwrites key's value. Equivalent to Put(key, value).
func (db *DB) Update(key, value int64) error {
	return db.Put(key, value)
}

// Get returns the live value for key, searching the memtable, then
// level 0 upward, newest segment first within each level. Any key < 1
// is rejected as NotFound without consulting the memtable or segments.
func (db *DB) Get(key int64) (int64, bool, error) {
	if key < 1 {
		return 0, false, nil
	}

	if v, ok := db.mt.Get(key); ok {
		return liveValue(v, ok)
	}

	for _, segs := range db.levels {
		for i := len(segs) - 1; i >= 0; i-- {
			v, ok, err := db.getFromSegment(segs[i], key)
			if err != nil {
				return 0, false, err
			}
			if ok {
				return liveValue(v, true)
			}
		}
	}
	return 0, false, nil
}

func liveValue(v int64, ok bool) (int64, bool, error) {
	if !ok || v == 0 {
		return 0, false, nil
	}
	return v, true, nil
}

func (db *DB) getFromSegment(name string, key int64) (int64, bool, error) {
	r, err := segment.Open(db.dir, name, db.readPool())
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	defer r.Close()

	v, ok, err := r.Get(key)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return v, ok, nil
}

// Scan returns every live key in [lo, hi], ascending, newest value per
// key, tombstoned keys excluded. lo >= hi returns an empty result.
func (db *DB) Scan(lo, hi int64) ([]Entry, error) {
	if lo >= hi {
		return nil, nil
	}

	seen := make(map[int64]int64)
	order := make([]int64, 0)
	record := func(k, v int64) {
		if _, exists := seen[k]; exists {
			return
		}
		seen[k] = v
		order = append(order, k)
	}

	for _, e := range db.mt.Scan(lo, hi) {
		record(e.Key, e.Value)
	}

	for _, segs := range db.levels {
		for i := len(segs) - 1; i >= 0; i-- {
			r, err := segment.Open(db.dir, segs[i], db.readPool())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
			}
			entries, err := r.Scan(lo, hi)
			closeErr := r.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
			}
			if closeErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrIO, closeErr)
			}
			for _, e := range entries {
				record(e.Key, e.Value)
			}
		}
	}

	out := make([]Entry, 0, len(order))
	for _, k := range order {
		if v := seen[k]; v != 0 {
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SetBufferpoolEnabled toggles whether reads consult the shared buffer
// pool. Disabling it does not drop already-cached pages; it just makes
// every subsequent page fetch bypass the cache until re-enabled.
func (db *DB) SetBufferpoolEnabled(enabled bool) {
	db.bufferpoolEnabled = enabled
}

func (db *DB) readPool() *bufferpool.Pool {
	if !db.bufferpoolEnabled {
		return nil
	}
	return db.pool
}

// flush is the memtable's FlushFunc: it writes the flushed entries as a
// new segment. In LSM mode that segment lands on level 0 and triggers a
// compaction cascade; in Sorted/BSST mode it is simply appended to a
// flat, never-compacted segment list.
func (db *DB) flush(entries []page.Entry) error {
	var name string
	var err error
	switch db.opts.SegmentFormat {
	case segment.Sorted:
		name, err = segment.WriteSorted(db.dir, entries)
	default:
		name, err = segment.WriteBSST(db.dir, entries, db.opts.BitsPerEntry)
	}
	if err != nil {
		return fmt.Errorf("%w: flush memtable: %v", ErrIO, err)
	}

	if len(db.levels) == 0 {
		db.levels = append(db.levels, nil)
	}
	db.levels[0] = append(db.levels[0], name)

	if db.opts.SegmentFormat != segment.LSM {
		return nil
	}
	return db.compactCascade(0)
}

// compactCascade merges every level from fromLevel upward while it
// holds 2 or more segments, pushing each merge's result into the next
// level and continuing until no level needs compaction.
func (db *DB) compactCascade(fromLevel int) error {
	for lvl := fromLevel; lvl < len(db.levels); lvl++ {
		for len(db.levels[lvl]) >= 2 {
			older, newer := db.levels[lvl][0], db.levels[lvl][1]
			merged, err := db.compactor.Merge(older, newer)
			if err != nil {
				return fmt.Errorf("kvengine: compact level %d: %w", lvl, err)
			}
			db.levels[lvl] = db.levels[lvl][2:]
			if lvl+1 == len(db.levels) {
				db.levels = append(db.levels, nil)
			}
			db.levels[lvl+1] = append(db.levels[lvl+1], merged)
		}
	}
	return nil
}

// loadAndClearState reads the persisted level map, if any, and then
// removes the state file: a level map is only ever valid for the
// single Open/Close cycle that wrote it, so leaving it behind would
// let a later crash-recovery path reload stale segment membership.
func (db *DB) loadAndClearState() ([][]string, error) {
	path := filepath.Join(db.dir, stateFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	var levels [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		lvl, err := strconv.Atoi(fields[0])
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: malformed state line %q", ErrCorruption, line)
		}
		for lvl >= len(levels) {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], fields[1:]...)
	}
	scanErr := scanner.Err()
	closeErr := f.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorruption, path, scanErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: close %s: %v", ErrIO, path, closeErr)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("%w: remove %s: %v", ErrIO, path, err)
	}
	return levels, nil
}

// saveState persists the current level map as "level,seg1,seg2,...",
// one line per non-empty level.
func (db *DB) saveState() error {
	path := filepath.Join(db.dir, stateFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for lvl, segs := range db.levels {
		if len(segs) == 0 {
			continue
		}
		fields := append([]string{strconv.Itoa(lvl)}, segs...)
		if _, err := fmt.Fprintln(w, strings.Join(fields, ",")); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrIO, path, err)
	}
	return f.Sync()
}
