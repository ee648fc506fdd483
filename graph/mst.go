package graph

import (
	"cmp"
)

type unionFind[N cmp.Ordered] struct {
	parent map[N]N
	rank   map[N]int
}

func newUnionFind[N cmp.Ordered]() *unionFind[N] {
	return &unionFind[N]{
		parent: map[N]N{},
		rank:   map[N]int{},
	}
}

func (u *unionFind[N]) find(n N) N {
	p, found := u.parent[n]
	if !found {
		u.parent[n] = n
		return n
	}
	if p == n {
		return n
	}
	root := u.find(p)
	u.parent[n] = root
	return root
}

// Merges the sets of a and b. Returns false if they were already the
// same set.
func (u *unionFind[N]) union(a, b N) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
	return true
}

// Minimum spanning tree by Kruskal's algorithm. All edges weigh the
// same, so edges are considered in (A, B) order. For a disconnected
// graph this is a spanning forest. Every node of g is kept.
func (g *Graph[N]) MinimumSpanningTree() *Graph[N] {
	tree := New[N]()
	for n := range g.adj {
		tree.AddNode(n)
	}

	uf := newUnionFind[N]()
	for _, e := range g.Edges() {
		if uf.union(e.A, e.B) {
			tree.AddEdge(e.A, e.B)
		}
	}

	return tree
}
