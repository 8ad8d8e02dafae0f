package segment

import (
	"fmt"

	"github.com/nyasuto/kvengine/internal/page"
)

// treeNode is the tagged-variant node used while building a BSSTSegment
// bottom-up, before page offsets exist. A leaf holds entries directly;
// an internal node holds one child pointer per key in its fan-out.
type treeNode struct {
	leaf     bool
	entries  []page.Entry // leaf: the actual (key, value) pairs
	children []*treeNode  // internal: one child per fan-out slot
	maxKey   int64
	offset   int64 // assigned during serialization
}

// buildTree groups sorted entries into leaves of at most
// page.NumEntries pairs, then repeatedly groups the level above into
// parents of at most page.NumEntries children (sizes within a level
// differing by at most one) until a single root remains.
func buildTree(entries []page.Entry) *treeNode {
	level := make([]*treeNode, 0, (len(entries)+page.NumEntries-1)/page.NumEntries)
	for i := 0; i < len(entries); i += page.NumEntries {
		end := i + page.NumEntries
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[i:end]
		level = append(level, &treeNode{
			leaf:    true,
			entries: chunk,
			maxKey:  chunk[len(chunk)-1].Key,
		})
	}

	for len(level) > 1 {
		level = buildParentLevel(level)
	}
	return level[0]
}

func buildParentLevel(children []*treeNode) []*treeNode {
	numParents := (len(children) + page.NumEntries - 1) / page.NumEntries
	base := len(children) / numParents
	remainder := len(children) % numParents

	parents := make([]*treeNode, 0, numParents)
	i := 0
	for p := 0; p < numParents; p++ {
		size := base
		if p < remainder {
			size++
		}
		group := children[i : i+size]
		i += size
		parents = append(parents, &treeNode{
			leaf:     false,
			children: group,
			maxKey:   group[len(group)-1].maxKey,
		})
	}
	return parents
}

// assignOffsets performs a breadth-first traversal of root, assigning
// each node a page offset in visitation order starting at firstOffset.
// It returns every node in that same order, which is also the order
// pages must be written in: leaves therefore appear last, past every
// internal level, since BFS exhausts shallower levels first.
func assignOffsets(root *treeNode, firstOffset int64) []*treeNode {
	order := make([]*treeNode, 0)
	queue := []*treeNode{root}
	offset := firstOffset
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		n.offset = offset
		offset += page.Size
		order = append(order, n)
		if !n.leaf {
			queue = append(queue, n.children...)
		}
	}
	return order
}

// verifyTree asserts the two invariants a bottom-up static tree build
// must never violate: no node holds more than page.NumEntries entries
// or children, and every node's maxKey equals the maximum key in its
// own subtree. It exists for tests only; off-by-one errors in grouping
// children evenly are easy to introduce and easy to miss by eye.
func verifyTree(n *treeNode) error {
	if n.leaf {
		if len(n.entries) > page.NumEntries {
			return fmt.Errorf("segment: leaf holds %d entries, want <= %d", len(n.entries), page.NumEntries)
		}
		if len(n.entries) == 0 {
			return fmt.Errorf("segment: leaf holds no entries")
		}
		if n.entries[len(n.entries)-1].Key != n.maxKey {
			return fmt.Errorf("segment: leaf maxKey %d does not match last entry key %d", n.maxKey, n.entries[len(n.entries)-1].Key)
		}
		return nil
	}

	if len(n.children) > page.NumEntries {
		return fmt.Errorf("segment: internal node holds %d children, want <= %d", len(n.children), page.NumEntries)
	}
	if len(n.children) == 0 {
		return fmt.Errorf("segment: internal node holds no children")
	}
	for _, c := range n.children {
		if err := verifyTree(c); err != nil {
			return err
		}
	}
	if last := n.children[len(n.children)-1].maxKey; last != n.maxKey {
		return fmt.Errorf("segment: internal maxKey %d does not match last child's maxKey %d", n.maxKey, last)
	}
	return nil
}

// pack renders n into a page.Size page. Internal nodes encode one
// (maxKey, childOffset) entry per child; leaves encode their entries
// directly.
func (n *treeNode) pack() []byte {
	if n.leaf {
		return page.PackPage(n.entries)
	}
	entries := make([]page.Entry, len(n.children))
	for i, c := range n.children {
		entries[i] = page.Entry{Key: c.maxKey, Value: c.offset}
	}
	return page.PackPage(entries)
}
