package treekem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Precomputed answers for an 8-leaf tree
//
//	              7
//	      3               11
//	  1       5       9       13
//	0   2   4   6   8   10  12  14
var (
	aLeafCount = LeafCount(8)
	aNodeWidth = NodeCount(15)
	aRoot      = []NodeIndex{0, 1, 3, 3, 7, 7, 7, 7}

	aLevel  = []uint{0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0}
	aLeft   = []NodeIndex{0, 0, 2, 1, 4, 4, 6, 3, 8, 8, 10, 9, 12, 12, 14}
	aRight  = []NodeIndex{0, 2, 2, 5, 4, 6, 6, 11, 8, 10, 10, 13, 12, 14, 14}
	aParent = []NodeIndex{1, 3, 1, 7, 5, 3, 5, 7, 9, 11, 9, 7, 13, 11, 13}
)

func TestTreeMathIndexing(t *testing.T) {
	for i := LeafIndex(0); i < LeafIndex(aLeafCount); i++ {
		n := toNodeIndex(i)
		require.Equal(t, n, NodeIndex(2*i))
		require.Equal(t, toLeafIndex(n), i)
	}

	require.Panics(t, func() { toLeafIndex(NodeIndex(1)) })
	require.Panics(t, func() { leafWidth(NodeCount(4)) })
}

func TestTreeMathSizes(t *testing.T) {
	require.Equal(t, nodeWidth(aLeafCount), aNodeWidth)
	require.Equal(t, leafWidth(aNodeWidth), aLeafCount)
	require.Equal(t, nodeWidth(LeafCount(0)), NodeCount(0))
	require.Equal(t, leafWidth(NodeCount(0)), LeafCount(0))

	for n := LeafCount(1); n <= 32; n++ {
		require.Equal(t, leafWidth(nodeWidth(n)), n)
	}
}

func TestTreeMathCapacity(t *testing.T) {
	in := []LeafCount{1, 2, 3, 4, 5, 7, 8, 9, 33}
	out := []LeafCount{1, 2, 4, 4, 8, 8, 8, 16, 64}

	for i := range in {
		require.Equal(t, leafCapacity(in[i]), out[i])
	}
}

func TestTreeMathRelations(t *testing.T) {
	for n := LeafCount(1); n <= aLeafCount; n++ {
		require.Equal(t, root(n), aRoot[n-1])
	}

	for x := NodeIndex(0); x < NodeIndex(aNodeWidth); x++ {
		require.Equal(t, level(x), aLevel[x])
		require.Equal(t, left(x), aLeft[x])
		require.Equal(t, right(x, aLeafCount), aRight[x])
		require.Equal(t, parent(x, aLeafCount), aParent[x])
	}

	// The root is its own parent and sibling
	r := root(aLeafCount)
	require.Equal(t, parent(r, aLeafCount), r)
	require.Equal(t, sibling(r, aLeafCount), r)
}

func TestTreeMathPaths(t *testing.T) {
	require.Equal(t, dirpath(NodeIndex(0), aLeafCount), []NodeIndex{0, 1, 3, 7})
	require.Equal(t, copath(NodeIndex(0), aLeafCount), []NodeIndex{2, 5, 11})

	require.Equal(t, dirpath(NodeIndex(6), aLeafCount), []NodeIndex{6, 5, 3, 7})
	require.Equal(t, copath(NodeIndex(6), aLeafCount), []NodeIndex{4, 1, 11})

	// A one-leaf tree's direct path is just the leaf
	require.Equal(t, dirpath(NodeIndex(0), LeafCount(1)), []NodeIndex{0})
	require.Equal(t, copath(NodeIndex(0), LeafCount(1)), []NodeIndex{})

	// Each copath node is the sibling of the corresponding dirpath node
	for l := LeafIndex(0); l < LeafIndex(aLeafCount); l++ {
		d := dirpath(toNodeIndex(l), aLeafCount)
		c := copath(toNodeIndex(l), aLeafCount)
		require.Equal(t, len(d), len(c)+1)
		for i := range c {
			require.Equal(t, c[i], sibling(d[i], aLeafCount))
			require.Equal(t, parent(c[i], aLeafCount), d[i+1])
		}
	}
}

func TestTreeMathAncestor(t *testing.T) {
	require.Equal(t, ancestor(LeafIndex(0), LeafIndex(0)), NodeIndex(0))
	require.Equal(t, ancestor(LeafIndex(0), LeafIndex(1)), NodeIndex(1))
	require.Equal(t, ancestor(LeafIndex(0), LeafIndex(3)), NodeIndex(3))
	require.Equal(t, ancestor(LeafIndex(4), LeafIndex(7)), NodeIndex(11))
	require.Equal(t, ancestor(LeafIndex(0), LeafIndex(7)), NodeIndex(7))
}
