// Package graph holds a small undirected, unweighted graph with the
// handful of algorithms the station analysis needs.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// An undirected edge. A is never greater than B.
type Edge[N cmp.Ordered] struct {
	A N
	B N
}

func NewEdge[N cmp.Ordered](a, b N) Edge[N] {
	if b < a {
		a, b = b, a
	}
	return Edge[N]{A: a, B: b}
}

func compareEdges[N cmp.Ordered](x, y Edge[N]) int {
	if c := cmp.Compare(x.A, y.A); c != 0 {
		return c
	}
	return cmp.Compare(x.B, y.B)
}

// Undirected graph without parallel edges. Self-loops are allowed,
// and count twice towards the degree of their node.
//
// Not safe for concurrent use.
type Graph[N cmp.Ordered] struct {
	adj      map[N]map[N]struct{}
	numEdges int
}

func New[N cmp.Ordered]() *Graph[N] {
	return &Graph[N]{
		adj: map[N]map[N]struct{}{},
	}
}

func (g *Graph[N]) AddNode(n N) {
	if _, found := g.adj[n]; !found {
		g.adj[n] = map[N]struct{}{}
	}
}

// Adds an edge, and its endpoints if needed. Adding an existing edge
// is a no-op.
func (g *Graph[N]) AddEdge(a, b N) {
	g.AddNode(a)
	g.AddNode(b)
	if _, found := g.adj[a][b]; found {
		return
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	g.numEdges++
}

func (g *Graph[N]) HasNode(n N) bool {
	_, found := g.adj[n]
	return found
}

func (g *Graph[N]) HasEdge(a, b N) bool {
	_, found := g.adj[a][b]
	return found
}

func (g *Graph[N]) NumNodes() int {
	return len(g.adj)
}

func (g *Graph[N]) NumEdges() int {
	return g.numEdges
}

// Nodes in ascending order.
func (g *Graph[N]) Nodes() []N {
	nodes := maps.Keys(g.adj)
	slices.Sort(nodes)
	return nodes
}

// Edges ordered by (A, B).
func (g *Graph[N]) Edges() []Edge[N] {
	edges := make([]Edge[N], 0, g.numEdges)
	for a, neighbors := range g.adj {
		for b := range neighbors {
			if a <= b {
				edges = append(edges, Edge[N]{A: a, B: b})
			}
		}
	}
	slices.SortFunc(edges, compareEdges[N])
	return edges
}

// Neighbors of n in ascending order.
func (g *Graph[N]) Neighbors(n N) []N {
	neighbors := maps.Keys(g.adj[n])
	slices.Sort(neighbors)
	return neighbors
}

func (g *Graph[N]) Degree(n N) int {
	d := len(g.adj[n])
	if _, loop := g.adj[n][n]; loop {
		d++
	}
	return d
}

// 2|E|/|N|, or 0 for the empty graph.
func (g *Graph[N]) AverageDegree() float64 {
	if len(g.adj) == 0 {
		return 0
	}
	return 2 * float64(g.numEdges) / float64(len(g.adj))
}

// Maps degree to the number of nodes having it.
func (g *Graph[N]) DegreeDistribution() map[int]int {
	dist := map[int]int{}
	for n := range g.adj {
		dist[g.Degree(n)]++
	}
	return dist
}

type NodeDegree[N cmp.Ordered] struct {
	Node   N
	Degree int
}

// All nodes, highest degree first. Ties are broken by node.
func (g *Graph[N]) DegreesDescending() []NodeDegree[N] {
	degrees := make([]NodeDegree[N], 0, len(g.adj))
	for n := range g.adj {
		degrees = append(degrees, NodeDegree[N]{Node: n, Degree: g.Degree(n)})
	}
	slices.SortFunc(degrees, func(x, y NodeDegree[N]) int {
		if x.Degree != y.Degree {
			return y.Degree - x.Degree
		}
		return cmp.Compare(x.Node, y.Node)
	})
	return degrees
}

// The subgraph induced by the nodes for which keep returns true.
func (g *Graph[N]) Subgraph(keep func(N) bool) *Graph[N] {
	sub := New[N]()
	for n := range g.adj {
		if keep(n) {
			sub.AddNode(n)
		}
	}
	for _, e := range g.Edges() {
		if sub.HasNode(e.A) && sub.HasNode(e.B) {
			sub.AddEdge(e.A, e.B)
		}
	}
	return sub
}

// Error returned by a strict Relabel, listing every node the mapping
// had no label for.
type UnmappedError[N cmp.Ordered] struct {
	Nodes []N
}

func (e *UnmappedError[N]) Error() string {
	names := make([]string, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		names = append(names, fmt.Sprint(n))
	}
	return fmt.Sprintf("%d nodes without label: %s", len(e.Nodes), strings.Join(names, ", "))
}

// Builds a copy of g with every node replaced by its label. Nodes
// mapping to the same label are merged. Nodes without a label are
// dropped, unless strict is set, in which case an *UnmappedError is
// returned instead.
func Relabel[N, M cmp.Ordered](g *Graph[N], label func(N) (M, bool), strict bool) (*Graph[M], error) {
	out := New[M]()
	labels := map[N]M{}
	unmapped := []N{}

	for _, n := range g.Nodes() {
		m, ok := label(n)
		if !ok {
			unmapped = append(unmapped, n)
			continue
		}
		labels[n] = m
		out.AddNode(m)
	}

	if strict && len(unmapped) > 0 {
		return nil, &UnmappedError[N]{Nodes: unmapped}
	}

	for _, e := range g.Edges() {
		a, okA := labels[e.A]
		b, okB := labels[e.B]
		if okA && okB {
			out.AddEdge(a, b)
		}
	}

	return out, nil
}
