package stationgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tsde.dev/stationgraph/model"
	"tsde.dev/stationgraph/parse"
	"tsde.dev/stationgraph/storage"
)

var ErrNoSnapshot = errors.New("no snapshot found")

// Runs the pipeline steps and keeps their output in storage: station
// tables resolved against the EVA registry, and the connections
// gathered by crawls.
type Manager struct {
	Resolver *Resolver

	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(s storage.Storage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Resolver: NewResolver(logger),
		storage:  s,
		logger:   logger.With("component", "manager"),
		now:      time.Now,
	}
}

func newSnapshotID(kind storage.SnapshotKind, runID string) string {
	return fmt.Sprintf("%s-%s", kind, runID)
}

// Parses the station registry (JSON) and EVA registry (CSV), resolves
// EVA numbers and stores both tables as a new stations snapshot.
func (m *Manager) ImportStations(stationsJSON io.Reader, registryCSV io.Reader) (*storage.SnapshotMetadata, *ResolveReport, error) {
	stations, err := parse.ParseStations(stationsJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing stations: %w", err)
	}

	registry, err := parse.ParseRegistry(registryCSV)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing registry: %w", err)
	}

	for _, rowErr := range registry.Errors {
		m.logger.Warn("skipping registry row", "error", rowErr)
	}

	report := m.Resolver.Resolve(stations, registry.Entries)

	metadata, err := m.WriteStations(stations, registry.Entries)
	if err != nil {
		return nil, nil, err
	}

	return metadata, report, nil
}

// Stores a station table and registry as a new stations snapshot.
func (m *Manager) WriteStations(stations []*model.Station, registry []*model.RegistryEntry) (*storage.SnapshotMetadata, error) {
	runID := uuid.NewString()
	metadata := &storage.SnapshotMetadata{
		ID:                 newSnapshotID(storage.KindStations, runID),
		Kind:               storage.KindStations,
		RunID:              runID,
		CreatedAt:          m.now().UTC(),
		Complete:           true,
		NumStations:        len(stations),
		NumRegistryEntries: len(registry),
	}

	writer, err := m.storage.GetWriter(metadata.ID)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}
	defer writer.Close()

	for _, st := range stations {
		if err := writer.WriteStation(st); err != nil {
			return nil, fmt.Errorf("writing station %s: %w", st.ID, err)
		}
	}
	for _, e := range registry {
		if err := writer.WriteRegistryEntry(e); err != nil {
			return nil, fmt.Errorf("writing registry entry %d: %w", e.EVA, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}

	if err := m.storage.WriteSnapshotMetadata(metadata); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	m.logger.Info("wrote stations snapshot", "id", metadata.ID, "stations", len(stations), "registry_entries", len(registry))

	return metadata, nil
}

// Runs a crawl and stores what it collected as a connections
// snapshot. If the crawl fails, the partial result is still stored
// (marked incomplete) and the crawl error returned.
func (m *Manager) Crawl(ctx context.Context, crawler *Crawler, seed Target) (*storage.SnapshotMetadata, *CrawlResult, error) {
	result, crawlErr := crawler.Crawl(ctx, seed)
	if result == nil {
		return nil, nil, crawlErr
	}

	metadata, err := m.WriteConnections(result, crawler.Date, crawler.Hour, seed.Name)
	if err != nil {
		return nil, result, errors.Join(crawlErr, err)
	}

	return metadata, result, crawlErr
}

func (m *Manager) WriteConnections(result *CrawlResult, date, hour, seed string) (*storage.SnapshotMetadata, error) {
	runID := uuid.NewString()
	metadata := &storage.SnapshotMetadata{
		ID:             newSnapshotID(storage.KindConnections, runID),
		Kind:           storage.KindConnections,
		RunID:          runID,
		CreatedAt:      m.now().UTC(),
		Date:           date,
		Hour:           hour,
		Seed:           seed,
		Complete:       result.Complete,
		NumConnections: len(result.Stops),
	}

	writer, err := m.storage.GetWriter(metadata.ID)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}
	defer writer.Close()

	if err := writer.BeginConnections(); err != nil {
		return nil, fmt.Errorf("beginning connections: %w", err)
	}
	for _, js := range result.Stops {
		if err := writer.WriteJourneyStop(js); err != nil {
			return nil, fmt.Errorf("writing journey stop %s: %w", js.ID, err)
		}
	}
	if err := writer.EndConnections(); err != nil {
		return nil, fmt.Errorf("ending connections: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}

	if err := m.storage.WriteSnapshotMetadata(metadata); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	m.logger.Info(
		"wrote connections snapshot",
		"id", metadata.ID,
		"stops", len(result.Stops),
		"complete", result.Complete,
	)

	return metadata, nil
}

// Finds snapshot metadata by id, or the most recent snapshot of the
// kind when id is empty.
func (m *Manager) findSnapshot(kind storage.SnapshotKind, id string, completeOnly bool) (*storage.SnapshotMetadata, error) {
	snapshots, err := m.storage.ListSnapshots(storage.ListSnapshotsFilter{
		Kind:         kind,
		CompleteOnly: completeOnly && id == "",
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	for _, s := range snapshots {
		if id == "" || s.ID == id {
			return s, nil
		}
	}

	if id == "" {
		return nil, fmt.Errorf("%w: no %s snapshots", ErrNoSnapshot, kind)
	}
	return nil, fmt.Errorf("%w: %s snapshot %s", ErrNoSnapshot, kind, id)
}

// Loads a stations snapshot. An empty id loads the most recent one.
func (m *Manager) LoadStations(id string) ([]*model.Station, []*model.RegistryEntry, *storage.SnapshotMetadata, error) {
	metadata, err := m.findSnapshot(storage.KindStations, id, true)
	if err != nil {
		return nil, nil, nil, err
	}

	reader, err := m.storage.GetReader(metadata.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("getting reader: %w", err)
	}

	stations, err := reader.Stations()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading stations: %w", err)
	}

	registry, err := reader.RegistryEntries()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading registry: %w", err)
	}

	return stations, registry, metadata, nil
}

// Loads a connections snapshot. An empty id loads the most recent
// one, skipping incomplete runs unless includePartial is set.
func (m *Manager) LoadConnections(id string, includePartial bool) ([]*model.JourneyStop, *storage.SnapshotMetadata, error) {
	metadata, err := m.findSnapshot(storage.KindConnections, id, !includePartial)
	if err != nil {
		return nil, nil, err
	}

	reader, err := m.storage.GetReader(metadata.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting reader: %w", err)
	}

	stops, err := reader.JourneyStops()
	if err != nil {
		return nil, nil, fmt.Errorf("reading connections: %w", err)
	}

	return stops, metadata, nil
}

func (m *Manager) ListSnapshots(filter storage.ListSnapshotsFilter) ([]*storage.SnapshotMetadata, error) {
	return m.storage.ListSnapshots(filter)
}

func (m *Manager) DeleteSnapshot(id string) error {
	if err := m.storage.DeleteSnapshot(id); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	m.logger.Info("deleted snapshot", "id", id)
	return nil
}
