package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyasuto/kvengine/internal/bufferpool"
	"github.com/nyasuto/kvengine/internal/page"
)

func sequentialEntries(n int) []page.Entry {
	entries := make([]page.Entry, n)
	for i := range entries {
		entries[i] = page.Entry{Key: int64(i + 1), Value: int64((i + 1) * 10)}
	}
	return entries
}

func TestSortedSegmentPointLookup(t *testing.T) {
	dir := t.TempDir()
	entries := sequentialEntries(1000)
	name, err := WriteSorted(dir, entries)
	require.NoError(t, err)

	r, err := Open(dir, name, nil)
	require.NoError(t, err)
	defer r.Close()

	v, ok, err := r.Get(500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5000), v)

	_, ok, err = r.Get(1001)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSortedSegmentScan(t *testing.T) {
	dir := t.TempDir()
	entries := sequentialEntries(600)
	name, err := WriteSorted(dir, entries)
	require.NoError(t, err)

	r, err := Open(dir, name, nil)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Scan(10, 15)
	require.NoError(t, err)
	require.Equal(t, []page.Entry{
		{Key: 10, Value: 100}, {Key: 11, Value: 110}, {Key: 12, Value: 120},
		{Key: 13, Value: 130}, {Key: 14, Value: 140}, {Key: 15, Value: 150},
	}, got)
}

// TestBSSTSegmentMultiLevel forces a tree with two internal levels
// above the leaves: 70000 entries need 274 leaves, which need 2
// parents, which need a root.
func TestBSSTSegmentMultiLevel(t *testing.T) {
	dir := t.TempDir()
	const n = 70000
	entries := sequentialEntries(n)
	name, err := WriteBSST(dir, entries, DefaultBitsPerEntry)
	require.NoError(t, err)

	pool := bufferpool.New(64)
	r, err := Open(dir, name, pool)
	require.NoError(t, err)
	defer r.Close()

	for _, key := range []int64{1, 2, n / 2, n - 1, n} {
		v, ok, err := r.Get(key)
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found", key)
		require.Equal(t, key*10, v)
	}

	_, ok, err := r.Get(n + 1)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = r.Get(-5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBSSTSegmentSingleLeaf(t *testing.T) {
	dir := t.TempDir()
	entries := sequentialEntries(10)
	name, err := WriteBSST(dir, entries, DefaultBitsPerEntry)
	require.NoError(t, err)

	r, err := Open(dir, name, nil)
	require.NoError(t, err)
	defer r.Close()

	v, ok, err := r.Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(50), v)
}

func TestBSSTSegmentScanAcrossLeaves(t *testing.T) {
	dir := t.TempDir()
	entries := sequentialEntries(1000)
	name, err := WriteBSST(dir, entries, DefaultBitsPerEntry)
	require.NoError(t, err)

	r, err := Open(dir, name, nil)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Scan(250, 260)
	require.NoError(t, err)
	require.Len(t, got, 11)
	require.Equal(t, int64(250), got[0].Key)
	require.Equal(t, int64(260), got[len(got)-1].Key)
}

func TestWriteBSSTRejectsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteBSST(dir, nil, DefaultBitsPerEntry)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBSSTSegmentReopenReconstructsFilter(t *testing.T) {
	dir := t.TempDir()
	entries := sequentialEntries(500)
	name, err := WriteBSST(dir, entries, DefaultBitsPerEntry)
	require.NoError(t, err)

	r1, err := Open(dir, name, nil)
	require.NoError(t, err)
	v1, ok1, err := r1.Get(123)
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2, err := Open(dir, name, nil)
	require.NoError(t, err)
	defer r2.Close()
	v2, ok2, err := r2.Get(123)
	require.NoError(t, err)

	require.Equal(t, ok1, ok2)
	require.Equal(t, v1, v2)
}
