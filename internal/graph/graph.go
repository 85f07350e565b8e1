// Package graph builds the bounded compatibility graph a search runs on.
//
// The graph is an arena: participant snapshots are fetched once per
// search and stored in a slice, and edges refer to nodes by index. Nothing
// in it points back into the directory, so independent searches share no
// state and may run in parallel.
//
// A directed edge u -> v labelled with item x means u could give x to v:
// x is one of u's offered items and satisfies one of v's wants. The origin
// (node 0) offers only the focal item.
//
// Out lists the hand-overs a node can make and In the ones it can
// receive. The enumerator follows Out to close cycles and In to build
// lines that deliver goods to the origin.
package graph

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
)

// Origin is the index of the focal participant.
const Origin = 0

// Node is a participant snapshot.
type Node struct {
	UserID string
	Items  []barter.Item
	Wants  []barter.WantCriteria

	// Depth is the expansion layer that discovered the node. Negative
	// depths were reached by backward expansion from the origin's wants.
	Depth int
}

// Edge is a possible hand-over from one node to another.
type Edge struct {
	From      int
	To        int
	Item      int
	Proximity decimal.Decimal
}

// Graph is the immutable arena consumed by the enumerator.
type Graph struct {
	Nodes []Node
	Out   [][]Edge
	In    [][]Edge
}

// Focal returns the focal item.
func (g *Graph) Focal() barter.Item {
	return g.Nodes[Origin].Items[0]
}

// ItemOf returns the item an edge hands over.
func (g *Graph) ItemOf(e Edge) barter.Item {
	return g.Nodes[e.From].Items[e.Item]
}

// Closes reports whether e hands an item back to the origin.
func (g *Graph) Closes(e Edge) bool {
	return e.To == Origin
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, out := range g.Out {
		n += len(out)
	}
	return n
}

// link computes every edge between arena nodes. Edges touching the
// origin are always kept; other edges are capped at topK per node in
// each direction, best proximity first.
func (g *Graph) link(topK int) {
	g.Out = make([][]Edge, len(g.Nodes))
	in := make([][]Edge, len(g.Nodes))
	for u := range g.Nodes {
		var closing, other []Edge
		for v := range g.Nodes {
			if u == v {
				continue
			}
			for xi, x := range g.Nodes[u].Items {
				prox, ok := bestProximity(g.Nodes[v].Wants, x)
				if !ok {
					continue
				}
				e := Edge{From: u, To: v, Item: xi, Proximity: prox}
				in[v] = append(in[v], e)
				if v == Origin {
					closing = append(closing, e)
				} else {
					other = append(other, e)
				}
			}
		}
		g.Out[u] = g.keep(closing, other, topK)
	}

	g.In = make([][]Edge, len(g.Nodes))
	for v, edges := range in {
		var fromOrigin, other []Edge
		for _, e := range edges {
			if e.From == Origin {
				fromOrigin = append(fromOrigin, e)
			} else {
				other = append(other, e)
			}
		}
		g.In[v] = g.keep(fromOrigin, other, topK)
	}
}

// keep sorts both lists and returns every pinned edge followed by the
// best topK others.
func (g *Graph) keep(pinned, other []Edge, topK int) []Edge {
	g.sortEdges(pinned)
	g.sortEdges(other)
	if topK > 0 && len(other) > topK {
		other = other[:topK]
	}
	return append(pinned, other...)
}

func (g *Graph) sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if c := edges[i].Proximity.Cmp(edges[j].Proximity); c != 0 {
			return c < 0
		}
		if edges[i].To != edges[j].To {
			return g.Nodes[edges[i].To].UserID < g.Nodes[edges[j].To].UserID
		}
		if edges[i].From != edges[j].From {
			return g.Nodes[edges[i].From].UserID < g.Nodes[edges[j].From].UserID
		}
		return g.ItemOf(edges[i]).ID < g.ItemOf(edges[j]).ID
	})
}

// bestProximity returns the smallest proximity among wants accepting x.
func bestProximity(wants []barter.WantCriteria, x barter.Item) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, w := range wants {
		if !w.Accepts(x) {
			continue
		}
		p := w.Proximity(x)
		if !found || p.LessThan(best) {
			best = p
			found = true
		}
	}
	return best, found
}
