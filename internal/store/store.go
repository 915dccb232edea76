// Package store persists the channel sheet and the operation history in
// SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/sheet"
)

const schema = `
CREATE TABLE IF NOT EXISTS sheet_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	siteName TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL DEFAULT '',
	updatedAt INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sheet_rows (
	channel INTEGER PRIMARY KEY,
	zone TEXT NOT NULL,
	dimRef TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	scenes TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	opId INTEGER NOT NULL,
	name TEXT NOT NULL,
	control TEXT NOT NULL DEFAULT '',
	queuedAt INTEGER NOT NULL,
	startedAt INTEGER,
	finishedAt INTEGER NOT NULL,
	result TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS operations_finished ON operations(finishedAt);
`

// HistoryQueue bounds the finished operations waiting to be written.
const HistoryQueue = 64

// Store is the panel's database. Operation history reported through the
// panel.Observer methods is written by a background goroutine.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	closed  bool
	records chan panel.Record
	done    chan struct{}
}

// Operation is one row of the operation history.
type Operation struct {
	OpID     uint64
	Name     string
	Control  panel.Control
	Queued   time.Time
	Started  time.Time // zero when cancelled before starting
	Finished time.Time
	Result   panel.Result
	Error    string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:      db,
		now:     time.Now,
		logger:  logger.WithPrefix("store"),
		records: make(chan panel.Record, HistoryQueue),
		done:    make(chan struct{}),
	}
	go s.writeHistory()
	return s, nil
}

// Close writes any queued history and closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()
	<-s.done
	return s.db.Close()
}

func (s *Store) writeHistory() {
	defer close(s.done)
	for rec := range s.records {
		if err := s.RecordOperation(rec); err != nil {
			s.logger.Warn("operation not recorded", "op", rec.Name, "err", err)
		}
	}
}

// SaveSheet replaces the stored sheet with sh.
func (s *Store) SaveSheet(sh *sheet.Sheet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sheet_meta (id, siteName, date, updatedAt) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET siteName = excluded.siteName, date = excluded.date, updatedAt = excluded.updatedAt
	`, sh.SiteName, sh.Date, unixMilli(s.now())); err != nil {
		return fmt.Errorf("save sheet meta: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sheet_rows`); err != nil {
		return fmt.Errorf("clear sheet rows: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sheet_rows (channel, zone, dimRef, name, type, scenes)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range sh.Rows {
		if _, err := stmt.Exec(i+1, r.Zone, r.DimRef, r.Name, string(r.Type), strings.Join(r.Scenes[:], ",")); err != nil {
			return fmt.Errorf("save channel %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadSheet returns the stored sheet. ok is false when nothing has been
// saved yet.
func (s *Store) LoadSheet() (sh *sheet.Sheet, ok bool, err error) {
	sh = &sheet.Sheet{}
	row := s.db.QueryRow(`SELECT siteName, date FROM sheet_meta WHERE id = 1`)
	if err := row.Scan(&sh.SiteName, &sh.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("scan sheet meta: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT channel, zone, dimRef, name, type, scenes
		FROM sheet_rows
		ORDER BY channel ASC
	`)
	if err != nil {
		return nil, false, fmt.Errorf("query sheet rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			channel int
			r       sheet.Row
			typ     string
			scenes  string
		)
		if err := rows.Scan(&channel, &r.Zone, &r.DimRef, &r.Name, &typ, &scenes); err != nil {
			return nil, false, fmt.Errorf("scan sheet row: %w", err)
		}
		if channel != len(sh.Rows)+1 {
			return nil, false, fmt.Errorf("%w: stored channel %d out of order", sheet.ErrMalformed, channel)
		}
		r.Type = sheet.Type(typ)
		levels := strings.Split(scenes, ",")
		if len(levels) != sheet.SceneCount {
			return nil, false, fmt.Errorf("%w: channel %d has %d scene levels", sheet.ErrMalformed, channel, len(levels))
		}
		copy(r.Scenes[:], levels)
		sh.Rows = append(sh.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(sh.Rows) == 0 {
		return nil, false, nil
	}
	return sh, true, nil
}

// RecordOperation appends a finished operation to the history.
func (s *Store) RecordOperation(rec panel.Record) error {
	var started sql.NullInt64
	if !rec.Started.IsZero() {
		started = sql.NullInt64{Int64: unixMilli(rec.Started), Valid: true}
	}
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO operations (opId, name, control, queuedAt, startedAt, finishedAt, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(rec.ID), rec.Name, string(rec.Control), unixMilli(rec.Queued), started,
		unixMilli(rec.Finished), string(rec.Result), errText)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// RecentOperations returns up to limit operations, newest first.
func (s *Store) RecentOperations(limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT opId, name, control, queuedAt, startedAt, finishedAt, result, error
		FROM operations
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var (
			op               Operation
			opID             int64
			control, result  string
			queued, finished int64
			started          sql.NullInt64
		)
		if err := rows.Scan(&opID, &op.Name, &control, &queued, &started, &finished, &result, &op.Error); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.OpID = uint64(opID)
		op.Control = panel.Control(control)
		op.Result = panel.Result(result)
		op.Queued = timeFromMilli(queued)
		op.Finished = timeFromMilli(finished)
		if started.Valid {
			op.Started = timeFromMilli(started.Int64)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// OperationStarted implements panel.Observer.
func (s *Store) OperationStarted(panel.Record) {}

// OperationFinished implements panel.Observer by queueing rec for the
// history writer. It never waits on the database; when the queue is full
// the record is dropped and logged.
func (s *Store) OperationFinished(rec panel.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("operation not recorded", "op", rec.Name, "err", "store closed")
		return
	}
	select {
	case s.records <- rec:
	default:
		s.logger.Warn("operation not recorded", "op", rec.Name, "err", "history queue full")
	}
}

// SheetChanged saves sh, logging failures. Suitable for sheet.Table.OnChange.
func (s *Store) SheetChanged(sh *sheet.Sheet) {
	if err := s.SaveSheet(sh); err != nil {
		s.logger.Warn("sheet not saved", "err", err)
	}
}

func unixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func timeFromMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}
