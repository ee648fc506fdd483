package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph/model"
)

var stationsCmd = &cobra.Command{
	Use:   "stations [lat lng] [limit]",
	Short: "Lists stations, or those near a geographical location",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  listStations,
}

var unresolvedOnly bool

func init() {
	stationsCmd.Flags().BoolVarP(&unresolvedOnly, "unresolved", "u", false, "Only list stations without EVA number")
	stationsCmd.Flags().StringVarP(&stationsID, "stations", "s", "", "Stations snapshot (default latest)")
	rootCmd.AddCommand(stationsCmd)
}

// Parses the optional [lat lng] [limit] arguments.
func parseLocationArgs(args []string) (*model.Position, int, error) {
	switch len(args) {
	case 0:
		return nil, 0, nil
	case 1:
		return nil, 0, fmt.Errorf("missing lng")
	}

	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid lng: %w", err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, 0, fmt.Errorf("location %f,%f out of range", lat, lng)
	}

	limit := 0
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return nil, 0, fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return nil, 0, fmt.Errorf("limit must be >= 0")
		}
	}

	return &model.Position{Lat: lat, Lon: lng}, limit, nil
}

func listStations(cmd *cobra.Command, args []string) error {
	here, limit, err := parseLocationArgs(args)
	if err != nil {
		return err
	}

	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	all, _, _, err := manager.LoadStations(stationsID)
	if err != nil {
		return err
	}

	stations := []*model.Station{}
	for _, st := range all {
		if unresolvedOnly && st.HasEVA() {
			continue
		}
		if here != nil && st.Position == nil {
			continue
		}
		stations = append(stations, st)
	}

	if here != nil {
		sort.SliceStable(stations, func(i, j int) bool {
			return here.HaversineDistance(*stations[i].Position) < here.HaversineDistance(*stations[j].Position)
		})
	} else {
		sort.SliceStable(stations, func(i, j int) bool {
			return stations[i].Name < stations[j].Name
		})
	}

	if limit > 0 && len(stations) > limit {
		stations = stations[:limit]
	}

	for _, st := range stations {
		distance := ""
		if here != nil {
			distance = fmt.Sprintf(" (%.1f km)", here.HaversineDistance(*st.Position))
		}
		fmt.Printf("%s: %s%s eva %d %s\n", st.ID, st.Name, distance, st.EVA, st.Resolution)
	}

	return nil
}
