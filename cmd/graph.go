package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph"
	"tsde.dev/stationgraph/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Analyses the station graph of a crawl",
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints summary statistics",
	Args:  cobra.NoArgs,
	RunE:  graphStats,
}

var graphPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Prints a shortest path between two stations",
	Args:  cobra.ExactArgs(2),
	RunE:  graphPath,
}

var graphMSTCmd = &cobra.Command{
	Use:   "mst",
	Short: "Prints the edges of a minimum spanning tree",
	Args:  cobra.NoArgs,
	RunE:  graphMST,
}

var graphCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Prints a cycle, if there is one",
	Args:  cobra.NoArgs,
	RunE:  graphCycle,
}

var (
	connectionsID  string
	includePartial bool
	prune          bool
	relabel        bool
	strictRelabel  bool
	selfLoops      bool
	top            int
)

func init() {
	graphCmd.PersistentFlags().StringVarP(&connectionsID, "connections", "C", "", "Connections snapshot (default latest complete)")
	graphCmd.PersistentFlags().BoolVarP(&includePartial, "partial", "p", false, "Consider partial snapshots when picking the latest")
	graphCmd.PersistentFlags().StringVarP(&stationsID, "stations", "s", "", "Stations snapshot (default latest)")
	graphCmd.PersistentFlags().BoolVarP(&prune, "prune", "", false, "Keep only queried stations and stations with coordinates")
	graphCmd.PersistentFlags().BoolVarP(&relabel, "eva", "", false, "Relabel stations with EVA numbers")
	graphCmd.PersistentFlags().BoolVarP(&strictRelabel, "strict", "", false, "With --eva, fail on stations without EVA number")
	graphCmd.PersistentFlags().BoolVarP(&selfLoops, "self-loops", "", false, "Keep edges from a station to itself")
	graphStatsCmd.Flags().IntVarP(&top, "top", "n", 10, "Number of highest degree stations to list")

	graphCmd.AddCommand(graphStatsCmd, graphPathCmd, graphMSTCmd, graphCycleCmd)
	rootCmd.AddCommand(graphCmd)
}

// The station graph as selected by the graph flags. With --eva, node
// names are EVA numbers.
func loadGraph() (*graph.Graph[string], error) {
	manager, closeStorage, err := openManager()
	if err != nil {
		return nil, err
	}
	defer closeStorage()

	stops, metadata, err := manager.LoadConnections(connectionsID, includePartial)
	if err != nil {
		return nil, fmt.Errorf("loading connections: %w", err)
	}
	if !metadata.Complete {
		logger.Warn("snapshot is from an aborted crawl", "id", metadata.ID)
	}

	g := stationgraph.BuildGraph(stops, stationgraph.GraphOptions{
		AllowSelfLoops: cfg.Graph.AllowSelfLoops || selfLoops,
	})
	if !prune && !relabel {
		return g, nil
	}

	stations, _, _, err := manager.LoadStations(stationsID)
	if err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}
	index := stationgraph.NewStationIndex(stations)

	if prune {
		g = stationgraph.PrunedView(g, stops, index)
	}

	if relabel {
		byEVA, err := stationgraph.RelabelToEVA(g, index, strictRelabel)
		if err != nil {
			return nil, err
		}
		return graph.Relabel(byEVA, func(eva int64) (string, bool) {
			return fmt.Sprintf("%d", eva), true
		}, true)
	}

	return g, nil
}

func graphStats(cmd *cobra.Command, args []string) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	stats := stationgraph.ComputeStats(g, top)

	fmt.Printf("nodes:              %d\n", stats.Nodes)
	fmt.Printf("edges:              %d\n", stats.Edges)
	fmt.Printf("average degree:     %.3f\n", stats.AverageDegree)
	fmt.Printf("connected:          %t\n", stats.Connected)
	if stats.Connected {
		fmt.Printf("avg shortest path:  %.3f\n", stats.AverageShortestPathLength)
	}
	fmt.Printf("spanning tree edges: %d\n", stats.SpanningTreeEdges)

	degrees := make([]int, 0, len(stats.DegreeDistribution))
	for d := range stats.DegreeDistribution {
		degrees = append(degrees, d)
	}
	sort.Ints(degrees)
	fmt.Println("degree distribution:")
	for _, d := range degrees {
		fmt.Printf("  %4d %d\n", d, stats.DegreeDistribution[d])
	}

	fmt.Println("top stations:")
	for _, nd := range stats.TopStations {
		fmt.Printf("  %4d %s\n", nd.Degree, nd.Node)
	}

	return nil
}

func graphPath(cmd *cobra.Command, args []string) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	path, err := g.ShortestPath(args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("%d hops\n", len(path)-1)
	for _, n := range path {
		fmt.Println(n)
	}
	return nil
}

func graphMST(cmd *cobra.Command, args []string) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	for _, e := range g.MinimumSpanningTree().Edges() {
		fmt.Printf("%s\t%s\n", e.A, e.B)
	}
	return nil
}

func graphCycle(cmd *cobra.Command, args []string) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	cycle, found := g.FindCycle()
	if !found {
		fmt.Println("no cycle")
		return nil
	}
	for _, n := range cycle {
		fmt.Println(n)
	}
	return nil
}
