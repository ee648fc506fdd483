package storage

import (
	"time"

	"tsde.dev/stationgraph/model"
)

// What a snapshot holds. A station snapshot has the resolved station
// table and the EVA registry it was resolved against, a connections
// snapshot has the journey stops of one crawl run.
type SnapshotKind string

const (
	KindStations    SnapshotKind = "stations"
	KindConnections SnapshotKind = "connections"
)

type Storage interface {
	// Retrieves all snapshot metadata records matching the given
	// filter, most recent first.
	ListSnapshots(filter ListSnapshotsFilter) ([]*SnapshotMetadata, error)

	// Writes a SnapshotMetadata record. If a record with the same
	// ID exists, it is updated.
	WriteSnapshotMetadata(metadata *SnapshotMetadata) error

	// Removes a snapshot, both metadata and data.
	DeleteSnapshot(id string) error

	// Gets a reader for the snapshot with the given ID.
	GetReader(id string) (SnapshotReader, error)

	// Gets a writer for the snapshot with the given ID. Any
	// existing data under that ID is replaced.
	GetWriter(id string) (SnapshotWriter, error)
}

type ListSnapshotsFilter struct {
	// If set, only include snapshots of this kind.
	Kind SnapshotKind

	// If set, only include snapshots from this crawl run.
	RunID string

	// If true, skip snapshots of aborted runs.
	CompleteOnly bool
}

// Metadata for a persisted snapshot. The data itself is accessed via
// SnapshotReader.
type SnapshotMetadata struct {
	ID        string
	Kind      SnapshotKind
	RunID     string
	CreatedAt time.Time

	// Crawl parameters (connections snapshots only).
	Date string
	Hour string
	Seed string

	// False if the run producing the snapshot was aborted and the
	// data is partial.
	Complete bool

	NumStations        int
	NumRegistryEntries int
	NumConnections     int
}

// Writes the tables of a single snapshot.
//
// As the connections table can get large, BeginConnections() and
// EndConnections() are called before and after all calls to
// WriteJourneyStop(), allowing transactions/batching/whathaveyou.
type SnapshotWriter interface {
	WriteStation(station *model.Station) error
	WriteRegistryEntry(entry *model.RegistryEntry) error
	BeginConnections() error
	WriteJourneyStop(stop *model.JourneyStop) error
	EndConnections() error
	Close() error
}

// Reads back a snapshot. Stations and registry entries come back in
// the order they were written; journey stops in write order too.
type SnapshotReader interface {
	Stations() ([]*model.Station, error)
	RegistryEntries() ([]*model.RegistryEntry, error)
	JourneyStops() ([]*model.JourneyStop, error)
}
