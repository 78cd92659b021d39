// Package journal records every reload attempt in a SQLite database so that
// operators can inspect what was remapped, what failed and why.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/swapvm/reload"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reload_attempts (
	attempt_id  TEXT PRIMARY KEY,
	isolate     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	finished_at INTEGER NOT NULL,
	elapsed_ns  INTEGER NOT NULL,
	summary     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS reload_attempts_finished ON reload_attempts (finished_at);
`

// ErrNotFound is returned by Get for unknown attempt ids.
var ErrNotFound = errors.New("journal: attempt not found")

// cborEncMode uses canonical mode so equal summaries encode identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Record is one journaled attempt.
type Record struct {
	AttemptID  string           `cbor:"attempt_id" json:"attemptId"`
	Isolate    string           `cbor:"isolate" json:"isolate"`
	Outcome    reload.EventKind `cbor:"outcome" json:"outcome"`
	Error      string           `cbor:"error,omitempty" json:"error,omitempty"`
	FinishedAt time.Time        `cbor:"finished_at" json:"finishedAt"`
	Elapsed    time.Duration    `cbor:"elapsed" json:"elapsed"`
	Summary    reload.Summary   `cbor:"summary" json:"summary"`
}

// Committed returns true for successful attempts.
func (r Record) Committed() bool {
	return r.Outcome == reload.EventReloadSucceeded
}

// RecordFromEvent converts a reload event to a record.
func RecordFromEvent(e reload.Event) Record {
	rec := Record{
		AttemptID:  e.AttemptID.String(),
		Isolate:    e.Isolate,
		Outcome:    e.Kind,
		FinishedAt: e.Time,
		Elapsed:    e.Elapsed,
		Summary:    e.Summary,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

// Store is the SQLite-backed journal. It implements reload.Observer.
type Store struct {
	db  *sql.DB
	log commonlog.Logger
}

// Open opens (creating if needed) the journal at path. An empty path
// opens a private in-memory journal.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dsn, err)
	}
	// One connection keeps an in-memory database alive and serializes
	// writers on a file database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &Store{db: db, log: commonlog.GetLogger("swapvm.journal")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HandleEvent implements reload.Observer.
func (s *Store) HandleEvent(e reload.Event) {
	if err := s.Append(context.Background(), RecordFromEvent(e)); err != nil {
		s.log.Errorf("journal: %s", err)
	}
}

// Append stores rec.
func (s *Store) Append(ctx context.Context, rec Record) error {
	payload, err := cborEncMode.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("journal: encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reload_attempts (attempt_id, isolate, outcome, error, finished_at, elapsed_ns, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.AttemptID, rec.Isolate, string(rec.Outcome), rec.Error,
		rec.FinishedAt.UnixNano(), int64(rec.Elapsed), payload)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", rec.AttemptID, err)
	}
	return nil
}

// List returns the most recent attempts, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, isolate, outcome, error, finished_at, elapsed_ns, summary
		 FROM reload_attempts ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return records, nil
}

// Get returns one attempt by id.
func (s *Store) Get(ctx context.Context, attemptID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT attempt_id, isolate, outcome, error, finished_at, elapsed_ns, summary
		 FROM reload_attempts WHERE attempt_id = ?`, attemptID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, attemptID)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		outcome    string
		finishedAt int64
		elapsed    int64
		payload    []byte
	)
	if err := row.Scan(&rec.AttemptID, &rec.Isolate, &outcome, &rec.Error, &finishedAt, &elapsed, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("journal: scan: %w", err)
	}
	rec.Outcome = reload.EventKind(outcome)
	rec.FinishedAt = time.Unix(0, finishedAt)
	rec.Elapsed = time.Duration(elapsed)
	if err := cbor.Unmarshal(payload, &rec.Summary); err != nil {
		return Record{}, fmt.Errorf("journal: decode summary of %s: %w", rec.AttemptID, err)
	}
	return rec, nil
}
