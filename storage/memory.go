package storage

import (
	"fmt"
	"sort"

	"tsde.dev/stationgraph/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	Snapshots map[string]*MemorySnapshot
	Metadata  map[string]*SnapshotMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Snapshots: map[string]*MemorySnapshot{},
		Metadata:  map[string]*SnapshotMetadata{},
	}
}

func (s *MemoryStorage) ListSnapshots(filter ListSnapshotsFilter) ([]*SnapshotMetadata, error) {
	snapshots := []*SnapshotMetadata{}
	for _, metadata := range s.Metadata {
		if filter.Kind != "" && metadata.Kind != filter.Kind {
			continue
		}
		if filter.RunID != "" && metadata.RunID != filter.RunID {
			continue
		}
		if filter.CompleteOnly && !metadata.Complete {
			continue
		}
		snapshots = append(snapshots, metadata)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

func (s *MemoryStorage) WriteSnapshotMetadata(metadata *SnapshotMetadata) error {
	m := *metadata
	s.Metadata[metadata.ID] = &m
	return nil
}

func (s *MemoryStorage) DeleteSnapshot(id string) error {
	_, hasMeta := s.Metadata[id]
	_, hasData := s.Snapshots[id]
	if !hasMeta && !hasData {
		return fmt.Errorf("snapshot %s not found", id)
	}
	delete(s.Metadata, id)
	delete(s.Snapshots, id)
	return nil
}

func (s *MemoryStorage) GetReader(id string) (SnapshotReader, error) {
	snap, ok := s.Snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	return snap, nil
}

func (s *MemoryStorage) GetWriter(id string) (SnapshotWriter, error) {
	snap := &MemorySnapshot{
		stopIndex: map[string]int{},
	}
	s.Snapshots[id] = snap
	return snap, nil
}

type MemorySnapshot struct {
	stations  []*model.Station
	registry  []*model.RegistryEntry
	stops     []*model.JourneyStop
	stopIndex map[string]int
}

func (m *MemorySnapshot) WriteStation(station *model.Station) error {
	st := *station
	if station.Position != nil {
		pos := *station.Position
		st.Position = &pos
	}
	m.stations = append(m.stations, &st)
	return nil
}

func (m *MemorySnapshot) WriteRegistryEntry(entry *model.RegistryEntry) error {
	e := *entry
	if entry.Position != nil {
		pos := *entry.Position
		e.Position = &pos
	}
	m.registry = append(m.registry, &e)
	return nil
}

func (m *MemorySnapshot) BeginConnections() error {
	return nil
}

// Stops are keyed by ID. Rewriting an ID replaces the earlier stop in
// place.
func (m *MemorySnapshot) WriteJourneyStop(stop *model.JourneyStop) error {
	js := *stop
	js.Path = append([]string{}, stop.Path...)
	if i, found := m.stopIndex[stop.ID]; found {
		m.stops[i] = &js
		return nil
	}
	m.stopIndex[stop.ID] = len(m.stops)
	m.stops = append(m.stops, &js)
	return nil
}

func (m *MemorySnapshot) EndConnections() error {
	return nil
}

func (m *MemorySnapshot) Close() error {
	return nil
}

func (m *MemorySnapshot) Stations() ([]*model.Station, error) {
	return append([]*model.Station{}, m.stations...), nil
}

func (m *MemorySnapshot) RegistryEntries() ([]*model.RegistryEntry, error) {
	return append([]*model.RegistryEntry{}, m.registry...), nil
}

func (m *MemorySnapshot) JourneyStops() ([]*model.JourneyStop, error) {
	return append([]*model.JourneyStop{}, m.stops...), nil
}
