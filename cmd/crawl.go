package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [seed]",
	Short: "Crawls the timetable API breadth first from a seed station",
	Long: `Crawls the timetable API breadth first from a seed station.

The seed is a station name or EVA number, and defaults to the one in
the config file. Station names are resolved against the latest
stations snapshot (or --stations). Interrupting the crawl keeps what
was collected so far as a partial snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: crawl,
}

var (
	crawlDate      string
	crawlHour      string
	maxQueries     int
	lookupFallback bool
	stationsID     string
)

func init() {
	crawlCmd.Flags().StringVarP(&crawlDate, "date", "d", "", "Timetable date, YYMMdd (default today)")
	crawlCmd.Flags().StringVarP(&crawlHour, "hour", "H", "", "Timetable hour, HH")
	crawlCmd.Flags().IntVarP(&maxQueries, "max-queries", "m", 0, "Stop after this many queries (0 for no limit)")
	crawlCmd.Flags().BoolVarP(&lookupFallback, "lookup", "l", false, "Ask the API for stations missing from the station table")
	crawlCmd.Flags().StringVarP(&stationsID, "stations", "s", "", "Stations snapshot to resolve names with (default latest)")
	rootCmd.AddCommand(crawlCmd)
}

func parseSeed(args []string) (stationgraph.Target, error) {
	seed := stationgraph.Target{
		Name: cfg.Crawl.SeedName,
		EVA:  cfg.Crawl.SeedEVA,
	}
	if len(args) == 1 {
		seed = stationgraph.Target{Name: args[0]}
		if eva, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			seed = stationgraph.Target{Name: args[0], EVA: eva}
		}
	}
	if seed.Name == "" && seed.EVA == 0 {
		return seed, fmt.Errorf("no seed station given")
	}
	return seed, nil
}

func crawl(cmd *cobra.Command, args []string) error {
	seed, err := parseSeed(args)
	if err != nil {
		return err
	}

	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	stations, _, stationsMeta, err := manager.LoadStations(stationsID)
	if err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}

	client, closeCache, err := newClient()
	if err != nil {
		return err
	}
	defer closeCache()

	crawler := stationgraph.NewCrawler(client, stationgraph.NewStationIndex(stations), logger)
	crawler.Pacer = stationgraph.NewPacer(cfg.API.MinInterval)
	client.Wait = crawler.Pacer.Wait
	crawler.Date = firstNonEmpty(crawlDate, cfg.Crawl.Date, time.Now().Format("060102"))
	crawler.Hour = firstNonEmpty(crawlHour, cfg.Crawl.Hour)
	crawler.MaxQueries = cfg.Crawl.MaxQueries
	if cmd.Flags().Changed("max-queries") {
		crawler.MaxQueries = maxQueries
	}
	crawler.LookupFallback = cfg.Crawl.LookupFallback || lookupFallback

	if seed.Name == "" {
		seed.Name = strconv.FormatInt(seed.EVA, 10)
	}

	logger.Info("crawling", "stations_snapshot", stationsMeta.ID, "seed", seed.Name, "date", crawler.Date, "hour", crawler.Hour)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	metadata, result, err := manager.Crawl(ctx, crawler, seed)
	if metadata != nil {
		fmt.Printf(
			"snapshot %s: %d journey stops from %d queries, %d stations skipped, complete=%t\n",
			metadata.ID,
			len(result.Stops),
			result.Queries,
			len(result.Skipped),
			metadata.Complete,
		)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
