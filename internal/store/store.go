// Package store keeps process-lifetime telemetry history in an in-memory
// SQLite database: the ISS ground track and per-source poll outcomes.
// Nothing is written to disk; the history ends with the process.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultMaxPositions bounds the ISS track.
const DefaultMaxPositions = 720

// Store handles the history tables. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	maxPositions int
}

// Position is one ISS sample.
type Position struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Velocity  float64
	At        time.Time
}

// Tick is the outcome of one applied poll.
type Tick struct {
	SourceID string
	At       time.Time
	Err      string // empty on success
}

// Health aggregates a source's tick history.
type Health struct {
	SourceID      string
	Ticks         int
	Failures      int
	LastTickAt    time.Time
	LastSuccessAt time.Time
	LastErr       string
}

// Open creates a fresh in-memory Store. Each call gets its own database.
func Open(maxPositions int) (*Store, error) {
	if maxPositions <= 0 {
		maxPositions = DefaultMaxPositions
	}

	// A named shared-cache memory DB keeps every pooled connection on the
	// same database without leaking it to other Stores in the process.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, maxPositions: maxPositions}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		altitude REAL,
		velocity REAL,
		observed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS source_ticks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_ticks_source ON source_ticks(source_id, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database. The history is gone afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// AddPosition appends a sample and prunes the track to its bound.
func (s *Store) AddPosition(p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO positions (latitude, longitude, altitude, velocity, observed_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Latitude, p.Longitude, p.Altitude, p.Velocity, p.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM positions WHERE seq <= (SELECT MAX(seq) FROM positions) - ?`,
		s.maxPositions)
	if err != nil {
		return fmt.Errorf("prune positions: %w", err)
	}
	return nil
}

// Track returns up to the last n positions, oldest first.
func (s *Store) Track(n int) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT latitude, longitude, altitude, velocity, observed_at FROM (
			SELECT * FROM positions ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var at int64
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Altitude, &p.Velocity, &at); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.At = fromNanos(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordTick stores one poll outcome.
func (s *Store) RecordTick(t Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO source_ticks (source_id, at, error) VALUES (?, ?, ?)`,
		t.SourceID, t.At.UnixNano(), t.Err)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// SourceHealth summarizes every source that has ticked, ordered by ID.
func (s *Store) SourceHealth() ([]Health, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT
			t.source_id,
			COUNT(*),
			SUM(CASE WHEN t.error != '' THEN 1 ELSE 0 END),
			(SELECT at FROM source_ticks WHERE source_id = t.source_id ORDER BY seq DESC LIMIT 1),
			(SELECT at FROM source_ticks WHERE source_id = t.source_id AND error = '' ORDER BY seq DESC LIMIT 1),
			(SELECT error FROM source_ticks WHERE source_id = t.source_id ORDER BY seq DESC LIMIT 1)
		FROM source_ticks t
		GROUP BY t.source_id
		ORDER BY t.source_id`)
	if err != nil {
		return nil, fmt.Errorf("query health: %w", err)
	}
	defer rows.Close()

	var out []Health
	for rows.Next() {
		var h Health
		var lastTick int64
		var lastOK sql.NullInt64
		if err := rows.Scan(&h.SourceID, &h.Ticks, &h.Failures, &lastTick, &lastOK, &h.LastErr); err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		h.LastTickAt = fromNanos(lastTick)
		if lastOK.Valid {
			h.LastSuccessAt = fromNanos(lastOK.Int64)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Timestamps are stored as Unix nanoseconds.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
