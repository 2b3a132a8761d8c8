package logger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5 * time.Second

	// timestampLayout is how position timestamps are stored. The column is
	// declared TEXT so values scan back in this exact layout; lexicographic
	// order equals chronological order, so range filters are plain string
	// comparisons.
	timestampLayout = "2006-01-02 15:04:05"
)

// Options describes parameters for opening a flight log store.
type Options struct {
	DBPath string
}

// Store provides access to the flight position database.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		icao TEXT NOT NULL,
		callsign TEXT,
		lat REAL,
		lon REAL,
		altitude INTEGER,
		speed INTEGER,
		track INTEGER,
		vert_rate INTEGER,
		squawk TEXT,
		category TEXT,
		aircraft_type TEXT,
		rssi REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timestamp ON positions(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_icao ON positions(icao)`,
	`CREATE INDEX IF NOT EXISTS idx_callsign ON positions(callsign)`,
}

// Open initialises the flight log store at opts.DBPath.
func Open(opts Options) (*Store, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("logger: database path is required")
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("logger: open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dbPath: opts.DBPath, now: time.Now}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("logger: apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("logger: begin schema transaction: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("logger: apply schema statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("logger: commit schema transaction: %w", err)
	}
	return nil
}

// Close finalises the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("logger: rollback failed after %v: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Position is one logged aircraft snapshot. Pointer fields are absent in
// the upstream feed for some aircraft and stay NULL in storage.
type Position struct {
	Timestamp    string   `json:"timestamp"`
	ICAO         string   `json:"icao"`
	Callsign     *string  `json:"callsign"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Altitude     *int64   `json:"altitude"`
	Speed        *int64   `json:"speed"`
	Track        *int64   `json:"track"`
	VertRate     *int64   `json:"vert_rate"`
	Squawk       *string  `json:"squawk"`
	Category     *string  `json:"category"`
	AircraftType *string  `json:"aircraft_type"`
	RSSI         *float64 `json:"rssi"`
}

// SavePositions stores one poll batch. Aircraft without a position fix
// were already filtered out by the poller. Every row in a batch carries
// the same timestamp.
func (s *Store) SavePositions(ctx context.Context, batch []Position) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	stamp := s.now().UTC().Format(timestampLayout)
	count := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO positions
			(timestamp, icao, callsign, lat, lon, altitude, speed, track, vert_rate, squawk, category, aircraft_type, rssi)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range batch {
			if _, err := stmt.ExecContext(ctx, stamp, p.ICAO, p.Callsign, p.Lat, p.Lon,
				p.Altitude, p.Speed, p.Track, p.VertRate, p.Squawk, p.Category, p.AircraftType, p.RSSI); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("logger: save positions: %w", err)
	}
	return count, nil
}

// Stats summarises the logged data set.
type Stats struct {
	TotalPositions int64   `json:"total_positions"`
	UniqueAircraft int64   `json:"unique_aircraft"`
	UniqueFlights  int64   `json:"unique_flights"`
	OldestRecord   *string `json:"oldest_record"`
	NewestRecord   *string `json:"newest_record"`
	StorageBytes   int64   `json:"storage_bytes"`
	StorageMB      float64 `json:"storage_mb"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskTotalMB    float64 `json:"disk_total_mb"`
}

// Stats computes the current logging statistics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COUNT(DISTINCT icao),
		COUNT(DISTINCT callsign),
		MIN(timestamp), MAX(timestamp) FROM positions`)
	var oldest, newest sql.NullString
	if err := row.Scan(&st.TotalPositions, &st.UniqueAircraft, &st.UniqueFlights, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("logger: stats query: %w", err)
	}
	if oldest.Valid {
		st.OldestRecord = &oldest.String
	}
	if newest.Valid {
		st.NewestRecord = &newest.String
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.StorageBytes = info.Size()
		st.StorageMB = roundMB(st.StorageBytes)
	}
	free, total := diskUsage(s.dbPath)
	st.DiskFreeBytes = free
	st.DiskFreeMB = roundMB(free)
	st.DiskTotalBytes = total
	st.DiskTotalMB = roundMB(total)
	return st, nil
}

func roundMB(bytes int64) float64 {
	mb := float64(bytes) / (1 << 20)
	return float64(int64(mb*100+0.5)) / 100
}

// Cleanup deletes positions older than the retention window and reclaims
// file space. retentionDays <= 0 disables retention entirely.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("logger: cleanup: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			return deleted, fmt.Errorf("logger: vacuum after cleanup: %w", err)
		}
	}
	return deleted, nil
}

// Clear removes every logged position.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("logger: clear: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("logger: vacuum after clear: %w", err)
	}
	return nil
}

// FlightQuery filters the flight summary listing. Zero values mean
// unfiltered; Limit falls back to 100.
type FlightQuery struct {
	ICAO     string
	Callsign string
	Start    string
	End      string
	Limit    int
}

// FlightSummary is one aircraft/callsign pair with its observation window.
type FlightSummary struct {
	ICAO      string  `json:"icao"`
	Callsign  *string `json:"callsign"`
	FirstSeen string  `json:"first_seen"`
	LastSeen  string  `json:"last_seen"`
	Positions int64   `json:"positions"`
}

// Flights lists distinct flights matching the query, most recent first.
func (s *Store) Flights(ctx context.Context, q FlightQuery) ([]FlightSummary, error) {
	query := `SELECT icao, callsign, MIN(timestamp), MAX(timestamp), COUNT(*) FROM positions`
	var conditions []string
	var params []any
	if q.ICAO != "" {
		conditions = append(conditions, "icao LIKE ?")
		params = append(params, "%"+strings.ToUpper(q.ICAO)+"%")
	}
	if q.Callsign != "" {
		conditions = append(conditions, "callsign LIKE ?")
		params = append(params, "%"+strings.ToUpper(q.Callsign)+"%")
	}
	if q.Start != "" {
		conditions = append(conditions, "timestamp >= ?")
		params = append(params, q.Start)
	}
	if q.End != "" {
		conditions = append(conditions, "timestamp <= ?")
		params = append(params, q.End)
	}
	query = appendWhere(query, conditions)
	query += ` GROUP BY icao, callsign ORDER BY MAX(timestamp) DESC LIMIT ?`
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	params = append(params, limit)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("logger: flights query: %w", err)
	}
	defer rows.Close()

	flights := []FlightSummary{}
	for rows.Next() {
		var f FlightSummary
		if err := rows.Scan(&f.ICAO, &f.Callsign, &f.FirstSeen, &f.LastSeen, &f.Positions); err != nil {
			return nil, fmt.Errorf("logger: scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logger: iterate flights: %w", err)
	}
	return flights, nil
}

// TracePoint is one sample along an aircraft's recorded path.
type TracePoint struct {
	Timestamp string   `json:"timestamp"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Altitude  *int64   `json:"altitude"`
	Speed     *int64   `json:"speed"`
	Track     *int64   `json:"track"`
}

// Trace returns the recorded path of one aircraft in chronological order.
// An unknown ICAO yields an empty trace, not an error.
func (s *Store) Trace(ctx context.Context, icao, start, end string) ([]TracePoint, error) {
	query := `SELECT timestamp, lat, lon, altitude, speed, track FROM positions WHERE icao = ?`
	params := []any{strings.ToUpper(icao)}
	if start != "" {
		query += ` AND timestamp >= ?`
		params = append(params, start)
	}
	if end != "" {
		query += ` AND timestamp <= ?`
		params = append(params, end)
	}
	query += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("logger: trace query: %w", err)
	}
	defer rows.Close()

	trace := []TracePoint{}
	for rows.Next() {
		var p TracePoint
		if err := rows.Scan(&p.Timestamp, &p.Lat, &p.Lon, &p.Altitude, &p.Speed, &p.Track); err != nil {
			return nil, fmt.Errorf("logger: scan trace point: %w", err)
		}
		trace = append(trace, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logger: iterate trace: %w", err)
	}
	return trace, nil
}

// RecentAircraft is one aircraft seen inside the recent window.
type RecentAircraft struct {
	ICAO      string   `json:"icao"`
	Callsign  *string  `json:"callsign"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Altitude  *int64   `json:"altitude"`
	LastSeen  string   `json:"last_seen"`
	Positions int64    `json:"positions"`
}

// Recent lists aircraft observed in the last hour, most recent first,
// capped at 50.
func (s *Store) Recent(ctx context.Context) ([]RecentAircraft, error) {
	cutoff := s.now().UTC().Add(-time.Hour).Format(timestampLayout)
	rows, err := s.db.QueryContext(ctx, `SELECT icao, callsign, MAX(lat), MAX(lon), MAX(altitude),
		MAX(timestamp), COUNT(*)
		FROM positions WHERE timestamp >= ?
		GROUP BY icao ORDER BY MAX(timestamp) DESC LIMIT 50`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("logger: recent query: %w", err)
	}
	defer rows.Close()

	aircraft := []RecentAircraft{}
	for rows.Next() {
		var a RecentAircraft
		if err := rows.Scan(&a.ICAO, &a.Callsign, &a.Lat, &a.Lon, &a.Altitude, &a.LastSeen, &a.Positions); err != nil {
			return nil, fmt.Errorf("logger: scan recent aircraft: %w", err)
		}
		aircraft = append(aircraft, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logger: iterate recent aircraft: %w", err)
	}
	return aircraft, nil
}

// Export returns every position in the optional time range, oldest first.
func (s *Store) Export(ctx context.Context, start, end string) ([]Position, error) {
	query := `SELECT timestamp, icao, callsign, lat, lon, altitude, speed, track, vert_rate, squawk, category, aircraft_type, rssi FROM positions`
	var conditions []string
	var params []any
	if start != "" {
		conditions = append(conditions, "timestamp >= ?")
		params = append(params, start)
	}
	if end != "" {
		conditions = append(conditions, "timestamp <= ?")
		params = append(params, end)
	}
	query = appendWhere(query, conditions)
	query += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("logger: export query: %w", err)
	}
	defer rows.Close()

	positions := []Position{}
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Timestamp, &p.ICAO, &p.Callsign, &p.Lat, &p.Lon,
			&p.Altitude, &p.Speed, &p.Track, &p.VertRate, &p.Squawk, &p.Category, &p.AircraftType, &p.RSSI); err != nil {
			return nil, fmt.Errorf("logger: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logger: iterate positions: %w", err)
	}
	return positions, nil
}

func appendWhere(query string, conditions []string) string {
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	return query
}
