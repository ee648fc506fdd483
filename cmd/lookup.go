package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph"
	"tsde.dev/stationgraph/model"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Looks up a station by name",
	Long: `Looks up a station by name in the latest stations snapshot, and with
--remote also asks the timetable API.`,
	Args: cobra.ExactArgs(1),
	RunE: lookup,
}

var remote bool

func init() {
	lookupCmd.Flags().BoolVarP(&remote, "remote", "r", false, "Also ask the timetable API")
	lookupCmd.Flags().StringVarP(&stationsID, "stations", "s", "", "Stations snapshot (default latest)")
	rootCmd.AddCommand(lookupCmd)
}

func lookup(cmd *cobra.Command, args []string) error {
	name := args[0]
	fmt.Printf("normalized: %s\n", model.NormalizeName(name))

	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	stations, _, _, err := manager.LoadStations(stationsID)
	if err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}

	st, found := stationgraph.NewStationIndex(stations).Lookup(name)
	if found {
		fmt.Printf("station %s: %s, eva %d (%s)\n", st.ID, st.Name, st.EVA, st.Resolution)
	} else {
		fmt.Println("not in station table")
	}

	if !remote {
		return nil
	}

	client, closeCache, err := newClient()
	if err != nil {
		return err
	}
	defer closeCache()

	eva, apiName, err := client.LookupStation(context.Background(), name)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", name, err)
	}
	fmt.Printf("api: %s, eva %d\n", apiName, eva)

	return nil
}
