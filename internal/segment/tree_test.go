package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyasuto/kvengine/internal/page"
)

func TestBuildTreeSatisfiesInvariantsAtVariousSizes(t *testing.T) {
	for _, n := range []int{1, 10, 256, 257, 512, 70000} {
		entries := make([]page.Entry, n)
		for i := range entries {
			entries[i] = page.Entry{Key: int64(i + 1), Value: int64(i + 1)}
		}
		root := buildTree(entries)
		require.NoError(t, verifyTree(root), "n=%d", n)
	}
}

func TestAssignOffsetsPutsLeavesLast(t *testing.T) {
	entries := make([]page.Entry, 70000)
	for i := range entries {
		entries[i] = page.Entry{Key: int64(i + 1), Value: int64(i + 1)}
	}
	root := buildTree(entries)
	nodes := assignOffsets(root, page.Size)

	sawLeaf := false
	for _, n := range nodes {
		if n.leaf {
			sawLeaf = true
			continue
		}
		require.False(t, sawLeaf, "an internal node appeared after a leaf in BFS order")
	}
}
