package compaction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyasuto/kvengine/internal/bufferpool"
	"github.com/nyasuto/kvengine/internal/page"
	"github.com/nyasuto/kvengine/internal/segment"
)

func TestMergeNewerWinsOnCollision(t *testing.T) {
	older := []page.Entry{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 5, Value: 50}}
	newer := []page.Entry{{Key: 2, Value: 99}, {Key: 3, Value: 30}}

	got := mergeNewerWins(older, newer)
	require.Equal(t, []page.Entry{
		{Key: 1, Value: 10},
		{Key: 2, Value: 99},
		{Key: 3, Value: 30},
		{Key: 5, Value: 50},
	}, got)
}

func TestMergeRetainsTombstones(t *testing.T) {
	older := []page.Entry{{Key: 1, Value: 10}}
	newer := []page.Entry{{Key: 1, Value: 0}}

	got := mergeNewerWins(older, newer)
	require.Equal(t, []page.Entry{{Key: 1, Value: 0}}, got)
}

func TestCompactorMergeWritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	olderName, err := segment.WriteBSST(dir, []page.Entry{
		{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 5, Value: 50},
	}, segment.DefaultBitsPerEntry)
	require.NoError(t, err)
	newerName, err := segment.WriteBSST(dir, []page.Entry{
		{Key: 2, Value: 99}, {Key: 3, Value: 30},
	}, segment.DefaultBitsPerEntry)
	require.NoError(t, err)

	pool := bufferpool.New(16)
	// Warm the cache so invalidation has something to drop.
	r, err := segment.Open(dir, olderName, pool)
	require.NoError(t, err)
	_, _, err = r.Get(1)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	c := New(Config{Dir: dir, BitsPerEntry: segment.DefaultBitsPerEntry, Pool: pool})
	mergedName, err := c.Merge(olderName, newerName)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, olderName))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, newerName))
	require.True(t, os.IsNotExist(err))

	_, ok := pool.Lookup(segment.PageID(olderName, 4096))
	require.False(t, ok, "stale page for the removed segment must not remain cached")

	mr, err := segment.Open(dir, mergedName, pool)
	require.NoError(t, err)
	defer mr.Close()

	for key, want := range map[int64]int64{1: 10, 2: 99, 3: 30, 5: 50} {
		v, ok, err := mr.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}
