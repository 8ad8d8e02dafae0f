package bufferpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyasuto/kvengine/internal/page"
)

func pageFor(key int64) []page.Entry { return []page.Entry{{Key: key, Value: key}} }

func TestLookupMissThenHit(t *testing.T) {
	p := New(4)

	_, ok := p.Lookup("seg#0")
	require.False(t, ok)

	p.Insert("seg#0", pageFor(1))
	got, ok := p.Lookup("seg#0")
	require.True(t, ok)
	require.Equal(t, pageFor(1), got)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	p := New(2)
	p.Insert("a", pageFor(1))
	p.Insert("b", pageFor(2))

	// touch "a" so "b" becomes the LRU victim
	_, _ = p.Lookup("a")

	p.Insert("c", pageFor(3))

	_, ok := p.Lookup("b")
	require.False(t, ok, "b should have been evicted")

	_, ok = p.Lookup("a")
	require.True(t, ok)
	_, ok = p.Lookup("c")
	require.True(t, ok)
}

func TestRemoveInvalidatesPage(t *testing.T) {
	p := New(4)
	p.Insert("seg#0", pageFor(1))

	require.True(t, p.Remove("seg#0"))
	_, ok := p.Lookup("seg#0")
	require.False(t, ok)
	require.False(t, p.Remove("seg#0"))
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	p := New(0)
	p.Insert("seg#0", pageFor(1))
	_, ok := p.Lookup("seg#0")
	require.False(t, ok)
	require.Equal(t, 0, p.Len())
}

func TestResizeShrinkEvicts(t *testing.T) {
	p := New(4)
	for i := 0; i < 4; i++ {
		p.Insert(fmt.Sprintf("p%d", i), pageFor(int64(i)))
	}
	require.Equal(t, 4, p.Len())

	p.Resize(2)
	require.Equal(t, 2, p.Len())

	// The two most-recently-touched pages (p2, p3) should survive.
	_, ok := p.Lookup("p2")
	require.True(t, ok)
	_, ok = p.Lookup("p3")
	require.True(t, ok)
}

func TestResizeGrowFromDisabledAllocatesBuckets(t *testing.T) {
	p := New(0)
	p.Insert("seg#0", pageFor(1)) // no-op while disabled

	p.Resize(4)
	p.Insert("seg#0", pageFor(1))

	got, ok := p.Lookup("seg#0")
	require.True(t, ok)
	require.Equal(t, pageFor(1), got)
}

func TestBoundedSetEqualsLastCDistinctTouched(t *testing.T) {
	p := New(3)
	touched := []string{"a", "b", "c", "d", "b", "e"}
	for _, id := range touched {
		if _, ok := p.Lookup(id); !ok {
			p.Insert(id, pageFor(1))
		}
	}

	// Last 3 distinct touches in MRU order: e, b, d (c and a evicted).
	for _, id := range []string{"e", "b", "d"} {
		_, ok := p.Lookup(id)
		require.True(t, ok, "expected %s to be cached", id)
	}
	for _, id := range []string{"a", "c"} {
		_, ok := p.Lookup(id)
		require.False(t, ok, "expected %s to be evicted", id)
	}
}
