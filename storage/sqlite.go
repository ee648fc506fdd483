package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"tsde.dev/stationgraph/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// Each snapshot lives in its own database file, next to a shared
// snapshots.db holding metadata. Without OnDisk everything is kept in
// memory.
type SQLiteStorage struct {
	SQLiteConfig

	metaDB    *sql.DB
	snapshots map[string]*sql.DB
}

type SQLiteSnapshotWriter struct {
	db          *sql.DB
	stationSeq  int
	registrySeq int
	stopSeq     int
	stopTx      *sql.Tx
	stopInsert  *sql.Stmt
}

type SQLiteSnapshotReader struct {
	db *sql.DB
}

func openSQLite(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if sourceName == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
		sourceName = filepath.Join(directory, "snapshots.db")
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshot (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    run_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    date TEXT NOT NULL,
    hour TEXT NOT NULL,
    seed TEXT NOT NULL,
    complete INTEGER NOT NULL,
    num_stations INTEGER NOT NULL,
    num_registry_entries INTEGER NOT NULL,
    num_connections INTEGER NOT NULL
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		metaDB:    db,
		snapshots: map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) snapshotPath(id string) string {
	return filepath.Join(s.Directory, id+".db")
}

func (s *SQLiteStorage) ListSnapshots(filter ListSnapshotsFilter) ([]*SnapshotMetadata, error) {
	query := `
SELECT
    id,
    kind,
    run_id,
    created_at,
    date,
    hour,
    seed,
    complete,
    num_stations,
    num_registry_entries,
    num_connections
FROM snapshot`

	conditions := []string{}
	params := []interface{}{}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		params = append(params, string(filter.Kind))
	}
	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		params = append(params, filter.RunID)
	}
	if filter.CompleteOnly {
		conditions = append(conditions, "complete = 1")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.metaDB.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*SnapshotMetadata{}
	for rows.Next() {
		var m SnapshotMetadata
		var kind string
		err := rows.Scan(
			&m.ID,
			&kind,
			&m.RunID,
			&m.CreatedAt,
			&m.Date,
			&m.Hour,
			&m.Seed,
			&m.Complete,
			&m.NumStations,
			&m.NumRegistryEntries,
			&m.NumConnections,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		m.Kind = SnapshotKind(kind)
		snapshots = append(snapshots, &m)
	}

	return snapshots, rows.Err()
}

func (s *SQLiteStorage) WriteSnapshotMetadata(m *SnapshotMetadata) error {
	_, err := s.metaDB.Exec(`
INSERT INTO snapshot (
    id,
    kind,
    run_id,
    created_at,
    date,
    hour,
    seed,
    complete,
    num_stations,
    num_registry_entries,
    num_connections
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    kind = excluded.kind,
    run_id = excluded.run_id,
    created_at = excluded.created_at,
    date = excluded.date,
    hour = excluded.hour,
    seed = excluded.seed,
    complete = excluded.complete,
    num_stations = excluded.num_stations,
    num_registry_entries = excluded.num_registry_entries,
    num_connections = excluded.num_connections
`,
		m.ID,
		string(m.Kind),
		m.RunID,
		m.CreatedAt.UTC(),
		m.Date,
		m.Hour,
		m.Seed,
		m.Complete,
		m.NumStations,
		m.NumRegistryEntries,
		m.NumConnections,
	)
	if err != nil {
		return fmt.Errorf("writing snapshot metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSnapshot(id string) error {
	res, err := s.metaDB.Exec(`DELETE FROM snapshot WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot metadata: %w", err)
	}
	n, _ := res.RowsAffected()

	db, open := s.snapshots[id]
	if open {
		db.Close()
		delete(s.snapshots, id)
	}

	removed := false
	if s.OnDisk {
		err := os.Remove(s.snapshotPath(id))
		if err == nil {
			removed = true
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot database: %w", err)
		}
	}

	if n == 0 && !open && !removed {
		return fmt.Errorf("snapshot %s not found", id)
	}
	return nil
}

func (s *SQLiteStorage) GetReader(id string) (SnapshotReader, error) {
	db, found := s.snapshots[id]
	if found {
		return &SQLiteSnapshotReader{
			db: db,
		}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("snapshot %s does not exist", id)
	}

	sourceName := s.snapshotPath(id)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot %s does not exist at %s", id, sourceName)
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	s.snapshots[id] = db

	return &SQLiteSnapshotReader{
		db: db,
	}, nil
}

func (s *SQLiteStorage) GetWriter(id string) (SnapshotWriter, error) {
	if db, found := s.snapshots[id]; found {
		db.Close()
		delete(s.snapshots, id)
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.snapshotPath(id)
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	for name, query := range map[string]string{
		"stations": `
CREATE TABLE stations (
    seq INTEGER NOT NULL,
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    city TEXT NOT NULL,
    category INTEGER NOT NULL,
    lat REAL,
    lon REAL,
    eva INTEGER NOT NULL,
    resolution INTEGER NOT NULL
);
CREATE INDEX stations_name_normalized ON stations (name_normalized);
`,
		"registry": `
CREATE TABLE registry (
    seq INTEGER NOT NULL,
    eva INTEGER NOT NULL,
    ds100 TEXT NOT NULL,
    name TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    lat REAL,
    lon REAL
);
CREATE INDEX registry_name_normalized ON registry (name_normalized);
`,
		"connections": `
CREATE TABLE connections (
    seq INTEGER NOT NULL,
    id TEXT PRIMARY KEY,
    daily_trip_id TEXT NOT NULL,
    date_id TEXT NOT NULL,
    start_time TEXT NOT NULL,
    position_in_trip TEXT NOT NULL,
    station_name TEXT NOT NULL,
    eva INTEGER NOT NULL,
    category TEXT NOT NULL,
    time TEXT NOT NULL,
    line_number TEXT NOT NULL,
    event_type TEXT NOT NULL,
    path TEXT NOT NULL,
    terminal TEXT NOT NULL
);
CREATE INDEX connections_station_name ON connections (station_name);
`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	s.snapshots[id] = db

	return &SQLiteSnapshotWriter{
		db: db,
	}, nil
}

func nullablePosition(p *model.Position) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lon, Valid: true}
}

func positionFromNullable(lat, lon sql.NullFloat64) *model.Position {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &model.Position{Lat: lat.Float64, Lon: lon.Float64}
}

func (w *SQLiteSnapshotWriter) WriteStation(st *model.Station) error {
	lat, lon := nullablePosition(st.Position)
	_, err := w.db.Exec(`
INSERT INTO stations (seq, id, name, name_normalized, postal_code, city, category, lat, lon, eva, resolution)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.stationSeq,
		st.ID,
		st.Name,
		st.NormalizedName,
		st.PostalCode,
		st.City,
		int(st.Category),
		lat,
		lon,
		st.EVA,
		int(st.Resolution),
	)
	if err != nil {
		return fmt.Errorf("inserting station: %w", err)
	}
	w.stationSeq++
	return nil
}

func (w *SQLiteSnapshotWriter) WriteRegistryEntry(e *model.RegistryEntry) error {
	lat, lon := nullablePosition(e.Position)
	_, err := w.db.Exec(`
INSERT INTO registry (seq, eva, ds100, name, name_normalized, lat, lon)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.registrySeq,
		e.EVA,
		e.DS100,
		e.Name,
		e.NormalizedName,
		lat,
		lon,
	)
	if err != nil {
		return fmt.Errorf("inserting registry entry: %w", err)
	}
	w.registrySeq++
	return nil
}

func (w *SQLiteSnapshotWriter) BeginConnections() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO connections (
    seq, id, daily_trip_id, date_id, start_time, position_in_trip,
    station_name, eva, category, time, line_number, event_type, path, terminal
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    daily_trip_id = excluded.daily_trip_id,
    date_id = excluded.date_id,
    start_time = excluded.start_time,
    position_in_trip = excluded.position_in_trip,
    station_name = excluded.station_name,
    eva = excluded.eva,
    category = excluded.category,
    time = excluded.time,
    line_number = excluded.line_number,
    event_type = excluded.event_type,
    path = excluded.path,
    terminal = excluded.terminal`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing statement: %w", err)
	}

	w.stopTx = tx
	w.stopInsert = stmt
	return nil
}

func (w *SQLiteSnapshotWriter) WriteJourneyStop(js *model.JourneyStop) error {
	if w.stopInsert == nil {
		return fmt.Errorf("WriteJourneyStop called outside BeginConnections/EndConnections")
	}

	_, err := w.stopInsert.Exec(
		w.stopSeq,
		js.ID,
		js.StopID.DailyTripID,
		js.StopID.Date,
		js.StopID.StartTime,
		js.StopID.Position,
		js.StationName,
		js.EVA,
		js.Category,
		js.Time,
		js.Line,
		string(js.EventType),
		strings.Join(js.Path, "|"),
		js.Terminal,
	)
	if err != nil {
		return fmt.Errorf("inserting journey stop: %w", err)
	}
	w.stopSeq++
	return nil
}

func (w *SQLiteSnapshotWriter) EndConnections() error {
	if w.stopTx == nil {
		return nil
	}

	w.stopInsert.Close()
	err := w.stopTx.Commit()
	w.stopTx = nil
	w.stopInsert = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (w *SQLiteSnapshotWriter) Close() error {
	if w.stopTx != nil {
		w.stopInsert.Close()
		w.stopTx.Rollback()
		w.stopTx = nil
		w.stopInsert = nil
		return fmt.Errorf("connections left open")
	}
	return nil
}

func (r *SQLiteSnapshotReader) Stations() ([]*model.Station, error) {
	rows, err := r.db.Query(`
SELECT id, name, name_normalized, postal_code, city, category, lat, lon, eva, resolution
FROM stations
ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	stations := []*model.Station{}
	for rows.Next() {
		st := &model.Station{}
		var lat, lon sql.NullFloat64
		var category, resolution int
		err := rows.Scan(
			&st.ID,
			&st.Name,
			&st.NormalizedName,
			&st.PostalCode,
			&st.City,
			&category,
			&lat,
			&lon,
			&st.EVA,
			&resolution,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		st.Category = model.Category(category)
		st.Resolution = model.Resolution(resolution)
		st.Position = positionFromNullable(lat, lon)
		stations = append(stations, st)
	}

	return stations, rows.Err()
}

func (r *SQLiteSnapshotReader) RegistryEntries() ([]*model.RegistryEntry, error) {
	rows, err := r.db.Query(`
SELECT eva, ds100, name, name_normalized, lat, lon
FROM registry
ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying registry: %w", err)
	}
	defer rows.Close()

	entries := []*model.RegistryEntry{}
	for rows.Next() {
		e := &model.RegistryEntry{}
		var lat, lon sql.NullFloat64
		err := rows.Scan(&e.EVA, &e.DS100, &e.Name, &e.NormalizedName, &lat, &lon)
		if err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}
		e.Position = positionFromNullable(lat, lon)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *SQLiteSnapshotReader) JourneyStops() ([]*model.JourneyStop, error) {
	rows, err := r.db.Query(`
SELECT
    id, daily_trip_id, date_id, start_time, position_in_trip,
    station_name, eva, category, time, line_number, event_type, path, terminal
FROM connections
ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	stops := []*model.JourneyStop{}
	for rows.Next() {
		js := &model.JourneyStop{}
		var eventType, path string
		err := rows.Scan(
			&js.ID,
			&js.StopID.DailyTripID,
			&js.StopID.Date,
			&js.StopID.StartTime,
			&js.StopID.Position,
			&js.StationName,
			&js.EVA,
			&js.Category,
			&js.Time,
			&js.Line,
			&eventType,
			&path,
			&js.Terminal,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning journey stop: %w", err)
		}
		js.EventType = model.EventType(eventType)
		js.Path = splitPath(path)
		stops = append(stops, js)
	}

	return stops, rows.Err()
}

func splitPath(path string) []string {
	if path == "" {
		return []string{}
	}
	return strings.Split(path, "|")
}

func (s *SQLiteStorage) Close() error {
	errs := []error{}
	for id, db := range s.snapshots {
		errs = append(errs, db.Close())
		delete(s.snapshots, id)
	}
	errs = append(errs, s.metaDB.Close())
	return errors.Join(errs...)
}
