package graph

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/testutil"
)

func build(t *testing.T, m *directory.Memory, focal string, opts Options) *Graph {
	t.Helper()
	g, err := NewBuilder(m, zerolog.Nop()).Build(context.Background(), focal, opts)
	require.NoError(t, err)
	return g
}

func nodeIndex(g *Graph, user string) int {
	for i, n := range g.Nodes {
		if n.UserID == user {
			return i
		}
	}
	return -1
}

func hasEdge(g *Graph, from, to, item string) bool {
	u := nodeIndex(g, from)
	if u < 0 {
		return false
	}
	for _, e := range g.Out[u] {
		if g.Nodes[e.To].UserID == to && g.ItemOf(e).ID == item {
			return true
		}
	}
	return false
}

func TestBuild_ThreeWay(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)

	g := build(t, m, "a-item", Options{MaxChainLength: 5})

	require.Equal(t, 3, g.Len())
	assert.Equal(t, "A", g.Nodes[Origin].UserID)
	assert.Equal(t, "a-item", g.Focal().ID)

	assert.True(t, hasEdge(g, "A", "C", "a-item"))
	assert.True(t, hasEdge(g, "C", "B", "c-tool"))
	assert.True(t, hasEdge(g, "B", "A", "b-book"))

	// no direct swaps exist
	assert.False(t, hasEdge(g, "A", "B", "a-item"))
	assert.False(t, hasEdge(g, "C", "A", "c-tool"))
	assert.Equal(t, 3, g.EdgeCount())
}

func TestBuild_InEdgesMirrorOut(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)

	g := build(t, m, "a-item", Options{MaxChainLength: 5})

	in := 0
	for v, edges := range g.In {
		for _, e := range edges {
			assert.Equal(t, v, e.To)
			in++
		}
	}
	assert.Equal(t, g.EdgeCount(), in)

	require.Len(t, g.In[Origin], 1)
	assert.Equal(t, "B", g.Nodes[g.In[Origin][0].From].UserID)
	assert.Equal(t, "b-book", g.ItemOf(g.In[Origin][0]).ID)
}

func TestBuild_OriginOffersOnlyFocalItem(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)
	m.PutItem(testutil.Item("a-spare", "A", "tools", 1050))

	g := build(t, m, "a-item", Options{MaxChainLength: 5})

	require.Len(t, g.Nodes[Origin].Items, 1)
	assert.False(t, hasEdge(g, "A", "B", "a-spare"))
}

func TestBuild_SkipsUntradableItems(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)

	book := testutil.Item("b-book", "B", "books", 950)
	book.Status = barter.ItemReserved
	book.ReservationTag = "other-chain"
	m.PutItem(book)

	g := build(t, m, "a-item", Options{MaxChainLength: 5})

	assert.False(t, hasEdge(g, "B", "A", "b-book"))
	for _, e := range g.Out[Origin] {
		assert.NotEqual(t, "b-book", g.ItemOf(e).ID)
	}
}

func TestBuild_RespectsMaxNodes(t *testing.T) {
	m := directory.NewMemory()
	m.PutItem(testutil.Item("focal", "origin", "cards", 100))
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5", "u6"} {
		m.AddWant(testutil.Want(u, "cards", 50, 150))
		m.PutItem(testutil.Item(u+"-item", u, "cards", 100))
	}

	g := build(t, m, "focal", Options{MaxChainLength: 5, MaxNodes: 3})
	assert.Equal(t, 3, g.Len())
}

func TestBuild_TopKCapsNonClosingEdges(t *testing.T) {
	m := directory.NewMemory()
	m.PutItem(testutil.Item("focal", "origin", "cards", 100))
	m.AddWant(testutil.Want("origin", "stamps", 1, 1000))
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		m.AddWant(testutil.Want(u, "cards", 50, 150))
	}

	g := build(t, m, "focal", Options{MaxChainLength: 3, TopK: 2})
	assert.Len(t, g.Out[Origin], 2)
}

func TestBuild_BackwardExpansionFindsClosers(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)

	// B is only reachable backwards from A's want at length 2.
	g := build(t, m, "a-item", Options{MaxChainLength: 2})
	assert.GreaterOrEqual(t, nodeIndex(g, "B"), 0)
	assert.GreaterOrEqual(t, nodeIndex(g, "C"), 0)
}

func TestBuild_Errors(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)
	b := NewBuilder(m, zerolog.Nop())

	_, err := b.Build(context.Background(), "missing", Options{})
	assert.True(t, barter.IsNotFound(err))

	it := testutil.Item("locked", "A", "electronics", 10)
	it.Status = barter.ItemLocked
	m.PutItem(it)
	_, err = b.Build(context.Background(), "locked", Options{})
	assert.True(t, barter.IsItemUnavailable(err))
}

func TestBuild_Deterministic(t *testing.T) {
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)
	m.PutItem(testutil.Item("d-item", "D", "electronics", 990))
	m.AddWant(testutil.Want("D", "electronics", 900, 1100))

	first := build(t, m, "a-item", Options{MaxChainLength: 4})
	for i := 0; i < 5; i++ {
		again := build(t, m, "a-item", Options{MaxChainLength: 4})
		assert.Equal(t, first, again)
	}
}
