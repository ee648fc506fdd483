package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tsde.dev/stationgraph/model"
)

const (
	PSQLJourneyStopBatchSize = 5000
)

// All snapshots share one set of tables, keyed by snapshot id.
type PSQLStorage struct {
	db *sql.DB
}

type PSQLSnapshotWriter struct {
	id          string
	db          *sql.DB
	stationSeq  int
	registrySeq int

	// Stops are buffered until EndConnections, deduplicated by ID.
	stopBuf   []*model.JourneyStop
	stopIndex map[string]int
}

type PSQLSnapshotReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS snapshot;
DROP TABLE IF EXISTS stations;
DROP TABLE IF EXISTS registry;
DROP TABLE IF EXISTS connections;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshot (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    run_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    date TEXT NOT NULL,
    hour TEXT NOT NULL,
    seed TEXT NOT NULL,
    complete BOOLEAN NOT NULL,
    num_stations INTEGER NOT NULL,
    num_registry_entries INTEGER NOT NULL,
    num_connections INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
    snapshot_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    city TEXT NOT NULL,
    category INTEGER NOT NULL,
    lat DOUBLE PRECISION,
    lon DOUBLE PRECISION,
    eva BIGINT NOT NULL,
    resolution INTEGER NOT NULL,
    PRIMARY KEY(snapshot_id, id)
);

CREATE TABLE IF NOT EXISTS registry (
    snapshot_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    eva BIGINT NOT NULL,
    ds100 TEXT NOT NULL,
    name TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    lat DOUBLE PRECISION,
    lon DOUBLE PRECISION,
    PRIMARY KEY(snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS connections (
    snapshot_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    daily_trip_id TEXT NOT NULL,
    date_id TEXT NOT NULL,
    start_time TEXT NOT NULL,
    position_in_trip TEXT NOT NULL,
    station_name TEXT NOT NULL,
    eva BIGINT NOT NULL,
    category TEXT NOT NULL,
    time TEXT NOT NULL,
    line_number TEXT NOT NULL,
    event_type TEXT NOT NULL,
    path TEXT[] NOT NULL,
    terminal TEXT NOT NULL,
    PRIMARY KEY(snapshot_id, id)
);
CREATE INDEX IF NOT EXISTS connections_station_name ON connections (station_name);
`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListSnapshots(filter ListSnapshotsFilter) ([]*SnapshotMetadata, error) {
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
	paramCount := 1

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", paramCount))
		params = append(params, string(filter.Kind))
		paramCount++
	}
	if filter.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", paramCount))
		params = append(params, filter.RunID)
		paramCount++
	}
	if filter.CompleteOnly {
		conditions = append(conditions, "complete")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.Query(query, params...)
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
		m.CreatedAt = m.CreatedAt.UTC()
		snapshots = append(snapshots, &m)
	}

	return snapshots, rows.Err()
}

func (s *PSQLStorage) WriteSnapshotMetadata(m *SnapshotMetadata) error {
	_, err := s.db.Exec(`
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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

func (s *PSQLStorage) deleteSnapshotData(tx *sql.Tx, id string) (int64, error) {
	total := int64(0)
	for _, table := range []string{"stations", "registry", "connections"} {
		res, err := tx.Exec(`DELETE FROM `+table+` WHERE snapshot_id = $1`, id)
		if err != nil {
			return 0, fmt.Errorf("deleting %s records: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *PSQLStorage) DeleteSnapshot(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM snapshot WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot metadata: %w", err)
	}
	n, _ := res.RowsAffected()

	rows, err := s.deleteSnapshotData(tx, id)
	if err != nil {
		return err
	}

	if n == 0 && rows == 0 {
		return fmt.Errorf("snapshot %s not found", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(id string) (SnapshotReader, error) {
	return &PSQLSnapshotReader{
		id: id,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(id string) (SnapshotWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// In case snapshot already exists, delete all records
	if _, err := s.deleteSnapshotData(tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &PSQLSnapshotWriter{
		id:        id,
		db:        s.db,
		stopIndex: map[string]int{},
	}, nil
}

func (w *PSQLSnapshotWriter) WriteStation(st *model.Station) error {
	lat, lon := nullablePosition(st.Position)
	_, err := w.db.Exec(`
INSERT INTO stations (snapshot_id, seq, id, name, name_normalized, postal_code, city, category, lat, lon, eva, resolution)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		w.id,
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

func (w *PSQLSnapshotWriter) WriteRegistryEntry(e *model.RegistryEntry) error {
	lat, lon := nullablePosition(e.Position)
	_, err := w.db.Exec(`
INSERT INTO registry (snapshot_id, seq, eva, ds100, name, name_normalized, lat, lon)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.id,
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

func (w *PSQLSnapshotWriter) BeginConnections() error {
	return nil
}

func (w *PSQLSnapshotWriter) WriteJourneyStop(stop *model.JourneyStop) error {
	js := *stop
	js.Path = append([]string{}, stop.Path...)
	if i, found := w.stopIndex[stop.ID]; found {
		w.stopBuf[i] = &js
		return nil
	}
	w.stopIndex[stop.ID] = len(w.stopBuf)
	w.stopBuf = append(w.stopBuf, &js)
	return nil
}

func (w *PSQLSnapshotWriter) EndConnections() error {
	for start := 0; start < len(w.stopBuf); start += PSQLJourneyStopBatchSize {
		end := min(start+PSQLJourneyStopBatchSize, len(w.stopBuf))
		err := w.flushJourneyStops(start, w.stopBuf[start:end])
		if err != nil {
			return fmt.Errorf("flushing journey stops: %w", err)
		}
	}

	w.stopBuf = nil
	w.stopIndex = map[string]int{}
	return nil
}

func (w *PSQLSnapshotWriter) flushJourneyStops(seq int, stops []*model.JourneyStop) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"connections",
		"snapshot_id", "seq", "id", "daily_trip_id", "date_id", "start_time", "position_in_trip",
		"station_name", "eva", "category", "time", "line_number", "event_type", "path", "terminal",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, js := range stops {
		_, err = stmt.Exec(
			w.id,
			seq+i,
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
			pq.Array(js.Path),
			js.Terminal,
		)
		if err != nil {
			return fmt.Errorf("COPY journey stop: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (w *PSQLSnapshotWriter) Close() error {
	if len(w.stopBuf) > 0 {
		return fmt.Errorf("%d journey stops not flushed", len(w.stopBuf))
	}
	return nil
}

func (r *PSQLSnapshotReader) Stations() ([]*model.Station, error) {
	rows, err := r.db.Query(`
SELECT id, name, name_normalized, postal_code, city, category, lat, lon, eva, resolution
FROM stations
WHERE snapshot_id = $1
ORDER BY seq ASC`, r.id)
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

func (r *PSQLSnapshotReader) RegistryEntries() ([]*model.RegistryEntry, error) {
	rows, err := r.db.Query(`
SELECT eva, ds100, name, name_normalized, lat, lon
FROM registry
WHERE snapshot_id = $1
ORDER BY seq ASC`, r.id)
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

func (r *PSQLSnapshotReader) JourneyStops() ([]*model.JourneyStop, error) {
	rows, err := r.db.Query(`
SELECT
    id, daily_trip_id, date_id, start_time, position_in_trip,
    station_name, eva, category, time, line_number, event_type, path, terminal
FROM connections
WHERE snapshot_id = $1
ORDER BY seq ASC`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	stops := []*model.JourneyStop{}
	for rows.Next() {
		js := &model.JourneyStop{}
		var eventType string
		var path []string
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
			pq.Array(&path),
			&js.Terminal,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning journey stop: %w", err)
		}
		js.EventType = model.EventType(eventType)
		if path == nil {
			path = []string{}
		}
		js.Path = path
		stops = append(stops, js)
	}

	return stops, rows.Err()
}
