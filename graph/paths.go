package graph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNoPath       = errors.New("no path")
	ErrNotConnected = errors.New("graph is not connected")
	ErrEmptyGraph   = errors.New("graph is empty")
)

// Hop distances from src to every node reachable from it. Neighbors
// are visited in ascending order, so parent pointers are
// deterministic.
func (g *Graph[N]) bfs(src N) (map[N]int, map[N]N) {
	dist := map[N]int{src: 0}
	parent := map[N]N{}
	queue := []N{src}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range g.Neighbors(n) {
			if _, seen := dist[m]; seen {
				continue
			}
			dist[m] = dist[n] + 1
			parent[m] = n
			queue = append(queue, m)
		}
	}

	return dist, parent
}

// Shortest path from src to dst, both included. Among paths of equal
// length, the one found by visiting neighbors in ascending order is
// returned.
func (g *Graph[N]) ShortestPath(src, dst N) ([]N, error) {
	if !g.HasNode(src) {
		return nil, fmt.Errorf("%w: %v", ErrNodeNotFound, src)
	}
	if !g.HasNode(dst) {
		return nil, fmt.Errorf("%w: %v", ErrNodeNotFound, dst)
	}

	_, parent := g.bfs(src)

	path := []N{dst}
	for n := dst; n != src; {
		p, found := parent[n]
		if !found {
			return nil, fmt.Errorf("%w: %v to %v", ErrNoPath, src, dst)
		}
		path = append(path, p)
		n = p
	}
	slices.Reverse(path)

	return path, nil
}

// Number of edges on the shortest path from src to dst.
func (g *Graph[N]) ShortestPathLength(src, dst N) (int, error) {
	path, err := g.ShortestPath(src, dst)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

func (g *Graph[N]) IsConnected() bool {
	if len(g.adj) == 0 {
		return false
	}
	for n := range g.adj {
		dist, _ := g.bfs(n)
		return len(dist) == len(g.adj)
	}
	return false
}

// Mean hop distance over all ordered pairs of distinct nodes. Only
// defined for connected graphs.
func (g *Graph[N]) AverageShortestPathLength() (float64, error) {
	n := len(g.adj)
	if n == 0 {
		return 0, ErrEmptyGraph
	}
	if n == 1 {
		return 0, nil
	}

	total := 0
	for node := range g.adj {
		dist, _ := g.bfs(node)
		if len(dist) != n {
			return 0, ErrNotConnected
		}
		for _, d := range dist {
			total += d
		}
	}

	return float64(total) / float64(n*(n-1)), nil
}

// Finds a cycle by depth first search from the smallest node. The
// cycle is returned as the nodes along it, without repeating the
// first one at the end; a self-loop gives a single node. Returns
// false if the graph is a forest.
func (g *Graph[N]) FindCycle() ([]N, bool) {
	visited := map[N]bool{}
	parent := map[N]N{}

	var visit func(n N) []N
	visit = func(n N) []N {
		visited[n] = true
		for _, m := range g.Neighbors(n) {
			if !visited[m] {
				parent[m] = n
				if cycle := visit(m); cycle != nil {
					return cycle
				}
				continue
			}
			if p, hasParent := parent[n]; hasParent && p == m {
				continue
			}

			// m is an ancestor of n (or n itself).
			cycle := []N{n}
			for x := n; x != m; {
				x = parent[x]
				cycle = append(cycle, x)
			}
			slices.Reverse(cycle)
			return cycle
		}
		return nil
	}

	for _, n := range g.Nodes() {
		if visited[n] {
			continue
		}
		if cycle := visit(n); cycle != nil {
			return cycle, true
		}
	}

	return nil, false
}
