package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph/storage"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Lists stored snapshots",
	Args:  cobra.NoArgs,
	RunE:  listSnapshots,
}

var deleteSnapshotCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Deletes snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  deleteSnapshots,
}

var (
	snapshotKind string
	completeOnly bool
)

func init() {
	snapshotsCmd.Flags().StringVarP(&snapshotKind, "kind", "k", "", "Only list snapshots of this kind (stations, connections)")
	snapshotsCmd.Flags().BoolVarP(&completeOnly, "complete", "", false, "Skip partial snapshots")
	snapshotsCmd.AddCommand(deleteSnapshotCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func listSnapshots(cmd *cobra.Command, args []string) error {
	kind := storage.SnapshotKind(snapshotKind)
	if kind != "" && kind != storage.KindStations && kind != storage.KindConnections {
		return fmt.Errorf("unknown snapshot kind '%s'", snapshotKind)
	}

	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	snapshots, err := manager.ListSnapshots(storage.ListSnapshotsFilter{
		Kind:         kind,
		CompleteOnly: completeOnly,
	})
	if err != nil {
		return err
	}

	for _, s := range snapshots {
		switch s.Kind {
		case storage.KindStations:
			fmt.Printf(
				"%s %s stations=%d registry=%d\n",
				s.CreatedAt.Local().Format(time.DateTime),
				s.ID,
				s.NumStations,
				s.NumRegistryEntries,
			)
		default:
			fmt.Printf(
				"%s %s seed=%q date=%s hour=%s stops=%d complete=%t\n",
				s.CreatedAt.Local().Format(time.DateTime),
				s.ID,
				s.Seed,
				s.Date,
				s.Hour,
				s.NumConnections,
				s.Complete,
			)
		}
	}

	return nil
}

func deleteSnapshots(cmd *cobra.Command, args []string) error {
	manager, closeStorage, err := openManager()
	if err != nil {
		return err
	}
	defer closeStorage()

	for _, id := range args {
		if err := manager.DeleteSnapshot(id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
	}
	return nil
}
