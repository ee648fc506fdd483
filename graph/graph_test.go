package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsde.dev/stationgraph/graph"
)

func build(edges ...[2]string) *graph.Graph[string] {
	g := graph.New[string]()
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func edge(a, b string) graph.Edge[string] {
	return graph.NewEdge(a, b)
}

func TestGraphBasics(t *testing.T) {
	g := build(
		[2]string{"A", "B"},
		[2]string{"C", "A"},
		[2]string{"B", "A"}, // duplicate
	)
	g.AddNode("D")

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, []string{"A", "B", "C", "D"}, g.Nodes())
	assert.Equal(t, []graph.Edge[string]{edge("A", "B"), edge("A", "C")}, g.Edges())
	assert.Equal(t, []string{"B", "C"}, g.Neighbors("A"))
	assert.True(t, g.HasEdge("A", "C"))
	assert.True(t, g.HasEdge("C", "A"))
	assert.False(t, g.HasEdge("B", "C"))
	assert.Equal(t, 2, g.Degree("A"))
	assert.Equal(t, 0, g.Degree("D"))
	assert.Equal(t, 0, g.Degree("nope"))
	assert.Equal(t, 1.0, g.AverageDegree())

	assert.Equal(t, graph.Edge[string]{A: "A", B: "B"}, graph.NewEdge("B", "A"))
}

func TestSelfLoops(t *testing.T) {
	g := build([2]string{"A", "A"}, [2]string{"A", "B"})

	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, 3, g.Degree("A"))
	assert.Equal(t, 1, g.Degree("B"))
	assert.Equal(t, 2.0, g.AverageDegree())

	// Degrees still sum to 2|E|
	sum := 0
	for _, n := range g.Nodes() {
		sum += g.Degree(n)
	}
	assert.Equal(t, 2*g.NumEdges(), sum)
}

func TestEmptyGraph(t *testing.T) {
	g := graph.New[string]()

	assert.Equal(t, 0, g.NumNodes())
	assert.Equal(t, 0.0, g.AverageDegree())
	assert.False(t, g.IsConnected())
	assert.Equal(t, map[int]int{}, g.DegreeDistribution())

	_, err := g.AverageShortestPathLength()
	assert.ErrorIs(t, err, graph.ErrEmptyGraph)

	_, found := g.FindCycle()
	assert.False(t, found)

	assert.Equal(t, 0, g.MinimumSpanningTree().NumNodes())
}

func TestDegreeDistribution(t *testing.T) {
	// Star around A, plus B-C
	g := build(
		[2]string{"A", "B"},
		[2]string{"A", "C"},
		[2]string{"A", "D"},
		[2]string{"B", "C"},
	)

	assert.Equal(t, map[int]int{3: 1, 2: 2, 1: 1}, g.DegreeDistribution())
	assert.Equal(t, []graph.NodeDegree[string]{
		{Node: "A", Degree: 3},
		{Node: "B", Degree: 2},
		{Node: "C", Degree: 2},
		{Node: "D", Degree: 1},
	}, g.DegreesDescending())
}

func TestShortestPath(t *testing.T) {
	// Two routes of length 2 from A to D: via B and via C. Then a
	// tail D-E-F, and an isolated island X-Y.
	g := build(
		[2]string{"A", "C"},
		[2]string{"C", "D"},
		[2]string{"A", "B"},
		[2]string{"B", "D"},
		[2]string{"D", "E"},
		[2]string{"E", "F"},
		[2]string{"X", "Y"},
	)

	for _, tc := range []struct {
		src, dst string
		path     []string
		err      error
	}{
		{"A", "A", []string{"A"}, nil},
		{"A", "B", []string{"A", "B"}, nil},
		{"A", "D", []string{"A", "B", "D"}, nil},
		{"D", "A", []string{"D", "B", "A"}, nil},
		{"A", "F", []string{"A", "B", "D", "E", "F"}, nil},
		{"F", "C", []string{"F", "E", "D", "C"}, nil},
		{"A", "X", nil, graph.ErrNoPath},
		{"A", "nope", nil, graph.ErrNodeNotFound},
		{"nope", "A", nil, graph.ErrNodeNotFound},
	} {
		path, err := g.ShortestPath(tc.src, tc.dst)
		if tc.err != nil {
			assert.True(t, errors.Is(err, tc.err), "%s->%s: %v", tc.src, tc.dst, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.path, path, "%s->%s", tc.src, tc.dst)

		length, err := g.ShortestPathLength(tc.src, tc.dst)
		require.NoError(t, err)
		assert.Equal(t, len(tc.path)-1, length)
	}
}

func TestIsConnected(t *testing.T) {
	assert.True(t, build([2]string{"A", "B"}, [2]string{"B", "C"}).IsConnected())
	assert.False(t, build([2]string{"A", "B"}, [2]string{"C", "D"}).IsConnected())

	g := build([2]string{"A", "B"})
	g.AddNode("C")
	assert.False(t, g.IsConnected())

	single := graph.New[string]()
	single.AddNode("A")
	assert.True(t, single.IsConnected())
}

func TestAverageShortestPathLength(t *testing.T) {
	// Path A-B-C: distances 1, 2, 1 in each direction.
	g := build([2]string{"A", "B"}, [2]string{"B", "C"})
	avg, err := g.AverageShortestPathLength()
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, avg, 1e-9)

	// Complete graph: every pair is adjacent.
	g = build(
		[2]string{"A", "B"},
		[2]string{"A", "C"},
		[2]string{"B", "C"},
	)
	avg, err = g.AverageShortestPathLength()
	require.NoError(t, err)
	assert.Equal(t, 1.0, avg)

	single := graph.New[string]()
	single.AddNode("A")
	avg, err = single.AverageShortestPathLength()
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	_, err = build([2]string{"A", "B"}, [2]string{"C", "D"}).AverageShortestPathLength()
	assert.ErrorIs(t, err, graph.ErrNotConnected)
}

func TestFindCycle(t *testing.T) {
	for _, tc := range []struct {
		name  string
		edges [][2]string
		cycle []string
	}{
		{"tree", [][2]string{{"A", "B"}, {"A", "C"}, {"C", "D"}}, nil},
		{"triangle", [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}}, []string{"A", "B", "C"}},
		{"self loop", [][2]string{{"A", "B"}, {"B", "B"}}, []string{"B"}},
		{
			"square with tail",
			[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}, {"E", "B"}},
			[]string{"B", "C", "D", "E"},
		},
		{
			"cycle in second component",
			[][2]string{{"A", "B"}, {"X", "Y"}, {"Y", "Z"}, {"Z", "X"}},
			[]string{"X", "Y", "Z"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cycle, found := build(tc.edges...).FindCycle()
			if tc.cycle == nil {
				assert.False(t, found)
				assert.Nil(t, cycle)
				return
			}
			require.True(t, found)
			assert.Equal(t, tc.cycle, cycle)
		})
	}
}

func TestMinimumSpanningTree(t *testing.T) {
	g := build(
		[2]string{"A", "B"},
		[2]string{"A", "C"},
		[2]string{"A", "D"},
		[2]string{"B", "C"},
		[2]string{"B", "D"},
		[2]string{"C", "D"},
		[2]string{"D", "E"},
		[2]string{"E", "E"},
	)
	require.True(t, g.IsConnected())

	mst := g.MinimumSpanningTree()

	assert.Equal(t, g.NumNodes(), mst.NumNodes())
	assert.Equal(t, g.NumNodes()-1, mst.NumEdges())
	assert.True(t, mst.IsConnected())
	_, found := mst.FindCycle()
	assert.False(t, found)

	// Edges are taken in (A, B) order.
	assert.Equal(t, []graph.Edge[string]{
		edge("A", "B"),
		edge("A", "C"),
		edge("A", "D"),
		edge("D", "E"),
	}, mst.Edges())

	// Every tree edge is an edge of g
	for _, e := range mst.Edges() {
		assert.True(t, g.HasEdge(e.A, e.B))
	}
}

func TestMinimumSpanningForest(t *testing.T) {
	g := build(
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"C", "A"},
		[2]string{"X", "Y"},
	)
	g.AddNode("Z")

	mst := g.MinimumSpanningTree()
	assert.Equal(t, 6, mst.NumNodes())
	assert.Equal(t, []graph.Edge[string]{
		edge("A", "B"),
		edge("A", "C"),
		edge("X", "Y"),
	}, mst.Edges())
}

func TestSubgraph(t *testing.T) {
	g := build(
		[2]string{"A", "B"},
		[2]string{"A", "C"},
		[2]string{"B", "C"},
		[2]string{"C", "D"},
	)

	sub := g.Subgraph(func(n string) bool { return n != "C" })
	assert.Equal(t, []string{"A", "B", "D"}, sub.Nodes())
	assert.Equal(t, []graph.Edge[string]{edge("A", "B")}, sub.Edges())

	// The original is untouched
	assert.Equal(t, 4, g.NumEdges())
}

func TestRelabel(t *testing.T) {
	g := build(
		[2]string{"Berlin Hbf", "Hamburg Hbf"},
		[2]string{"Berlin Hbf", "Bernau"},
		[2]string{"Hamburg Hbf", "Nowhere"},
	)
	labels := map[string]int64{
		"Berlin Hbf":  8011160,
		"Hamburg Hbf": 8002549,
		"Bernau":      8011167,
	}
	label := func(n string) (int64, bool) {
		eva, ok := labels[n]
		return eva, ok
	}

	// Lenient drops unmapped nodes along with their edges
	relabeled, err := graph.Relabel(g, label, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{8002549, 8011160, 8011167}, relabeled.Nodes())
	assert.Equal(t, []graph.Edge[int64]{
		graph.NewEdge[int64](8002549, 8011160),
		graph.NewEdge[int64](8011160, 8011167),
	}, relabeled.Edges())

	// Strict refuses
	_, err = graph.Relabel(g, label, true)
	require.Error(t, err)
	var unmapped *graph.UnmappedError[string]
	require.True(t, errors.As(err, &unmapped))
	assert.Equal(t, []string{"Nowhere"}, unmapped.Nodes)
	assert.Contains(t, err.Error(), "Nowhere")

	// Nodes sharing a label are merged
	labels["Nowhere"] = 8002549
	merged, err := graph.Relabel(g, label, true)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.NumNodes())
	assert.True(t, merged.HasEdge(8002549, 8002549))
}
