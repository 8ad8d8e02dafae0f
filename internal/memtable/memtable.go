// Package memtable implements the in-memory ordered index of recent
// writes: a skip list bounded to a configured capacity that flushes
// itself to a segment once full.
package memtable

import "github.com/nyasuto/kvengine/internal/page"

// FlushFunc serializes entries (sorted ascending by key, as produced by
// an in-order traversal) into a new on-disk segment. It is supplied by
// the database coordinator, which knows the configured segment format.
type FlushFunc func(entries []page.Entry) error

// Config holds Memtable construction parameters.
type Config struct {
	// MaxEntries is the capacity M: once size reaches MaxEntries after a
	// put, the table flushes synchronously.
	MaxEntries int
	// Flush is invoked with every entry in ascending key order whenever
	// the table fills or Close is called on a non-empty table.
	Flush FlushFunc
}

// Memtable is the ordered, bounded-capacity write buffer in front of the
// segment directory.
type Memtable struct {
	skipList *skipList
	cfg      Config
}

// New creates an empty Memtable per cfg.
func New(cfg Config) *Memtable {
	return &Memtable{skipList: newSkipList(), cfg: cfg}
}

// Put inserts or overwrites key with value. It returns true iff this
// call caused the table to flush to a segment.
func (m *Memtable) Put(key, value int64) (bool, error) {
	m.skipList.put(key, value)

	if m.skipList.size >= m.cfg.MaxEntries {
		if err := m.flush(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get returns the in-memtable value for key, if present.
func (m *Memtable) Get(key int64) (int64, bool) {
	return m.skipList.get(key)
}

// Scan returns every entry with lo <= key <= hi, ascending by key.
// Tombstones (value == 0) are retained; interpreting them is the
// database coordinator's responsibility.
func (m *Memtable) Scan(lo, hi int64) []page.Entry {
	nodes := m.skipList.scan(lo, hi)
	entries := make([]page.Entry, len(nodes))
	for i, n := range nodes {
		entries[i] = page.Entry{Key: n.key, Value: n.value}
	}
	return entries
}

// Size returns the current number of entries.
func (m *Memtable) Size() int { return m.skipList.size }

// Close forces a flush if the table is non-empty.
func (m *Memtable) Close() error {
	if m.skipList.size == 0 {
		return nil
	}
	return m.flush()
}

// flush traverses the table in order, hands the entries to the
// configured FlushFunc, then clears the table.
func (m *Memtable) flush() error {
	nodes := m.skipList.inOrder()
	entries := make([]page.Entry, len(nodes))
	for i, n := range nodes {
		entries[i] = page.Entry{Key: n.key, Value: n.value}
	}

	if err := m.cfg.Flush(entries); err != nil {
		return err
	}

	m.skipList = newSkipList()
	return nil
}
