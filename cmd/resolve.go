package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph/model"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <stations.json> <registry.csv>",
	Short: "Imports the station registry and resolves EVA numbers",
	Args:  cobra.ExactArgs(2),
	RunE:  resolve,
}

var showAmbiguous bool

func init() {
	resolveCmd.Flags().BoolVarP(&showAmbiguous, "ambiguous", "a", false, "List stations with several geo candidates")
	rootCmd.AddCommand(resolveCmd)
}

func resolve(cmd *cobra.Command, args []string) error {
	stationsFile, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening station registry: %w", err)
	}
	defer stationsFile.Close()

	registryFile, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("opening EVA registry: %w", err)
	}
	defer registryFile.Close()

	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	metadata, report, err := manager.ImportStations(stationsFile, registryFile)
	if err != nil {
		return err
	}

	fmt.Printf("snapshot %s: %d stations, %d registry entries\n", metadata.ID, metadata.NumStations, metadata.NumRegistryEntries)
	for _, r := range []model.Resolution{
		model.ResolvedExact,
		model.ResolvedGeo,
		model.ResolvedManual,
		model.Ambiguous,
		model.Unresolved,
	} {
		fmt.Printf("  %-10s %d\n", r, report.Counts[r])
	}
	for _, id := range report.UnknownOverrides {
		fmt.Printf("override for unknown station %s ignored\n", id)
	}

	if showAmbiguous {
		for _, a := range report.Ambiguous {
			fmt.Printf("%s %s: %v\n", a.StationID, a.Name, a.Candidates)
		}
	}

	return nil
}
