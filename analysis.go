package stationgraph

import (
	"tsde.dev/stationgraph/graph"
	"tsde.dev/stationgraph/model"
)

type GraphOptions struct {
	// Keep edges from a station to itself, which show up when a
	// path names the queried station.
	AllowSelfLoops bool
}

// Builds the station graph. Every journey stop connects the station it
// was observed at to each station on its path. Consecutive path
// stations are not connected to each other.
func BuildGraph(stops []*model.JourneyStop, opts GraphOptions) *graph.Graph[string] {
	g := graph.New[string]()
	for _, js := range stops {
		hub := js.StationName
		if hub == "" {
			continue
		}
		g.AddNode(hub)
		for _, p := range js.Path {
			if p == "" || (p == hub && !opts.AllowSelfLoops) {
				continue
			}
			g.AddEdge(hub, p)
		}
	}
	return g
}

// Names of the stations the journey stops were observed at.
func QueryingStations(stops []*model.JourneyStop) map[string]bool {
	hubs := map[string]bool{}
	for _, js := range stops {
		if js.StationName != "" {
			hubs[js.StationName] = true
		}
	}
	return hubs
}

// The subgraph of stations that were queried, or whose coordinates
// the index knows.
func PrunedView(g *graph.Graph[string], stops []*model.JourneyStop, index *StationIndex) *graph.Graph[string] {
	hubs := QueryingStations(stops)
	return g.Subgraph(func(name string) bool {
		return hubs[name] || index.HasPosition(name)
	})
}

// Relabels station names with EVA numbers. With strict set, any
// station without one is an error (*graph.UnmappedError[string]);
// otherwise such stations are dropped.
func RelabelToEVA(g *graph.Graph[string], index *StationIndex, strict bool) (*graph.Graph[int64], error) {
	return graph.Relabel(g, index.EVA, strict)
}

// Summary of a station graph.
type GraphStats struct {
	Nodes         int
	Edges         int
	AverageDegree float64
	Connected     bool

	// Only set for connected graphs.
	AverageShortestPathLength float64

	// Edges of the minimum spanning tree (forest, if disconnected).
	SpanningTreeEdges int

	DegreeDistribution map[int]int
	TopStations        []graph.NodeDegree[string]
}

// Computes summary statistics. TopStations holds up to top stations
// by degree.
func ComputeStats(g *graph.Graph[string], top int) *GraphStats {
	stats := &GraphStats{
		Nodes:              g.NumNodes(),
		Edges:              g.NumEdges(),
		AverageDegree:      g.AverageDegree(),
		Connected:          g.IsConnected(),
		SpanningTreeEdges:  g.MinimumSpanningTree().NumEdges(),
		DegreeDistribution: g.DegreeDistribution(),
	}

	if stats.Connected {
		avg, err := g.AverageShortestPathLength()
		if err == nil {
			stats.AverageShortestPathLength = avg
		}
	}

	degrees := g.DegreesDescending()
	if top >= 0 && len(degrees) > top {
		degrees = degrees[:top]
	}
	stats.TopStations = degrees

	return stats
}
