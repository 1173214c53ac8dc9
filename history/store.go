// Package history persists task execution records to SQLite.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/zeus-go/foundation/core"
)

// ErrCodeHistory tags every storage failure of this package.
const ErrCodeHistory = "FOUNDATION_HISTORY"

const currentSchemaVersion = 1

// Store is a SQLite table of core.TaskExecutionRecord rows.
type Store struct {
	db         *sql.DB
	path       string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

// Open opens or creates the database at path and migrates its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New(ErrCodeHistory, "history path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errors.Wrap(err, ErrCodeHistory, "cannot create history directory").
				WithContext("path", path)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeHistory, "cannot open history database").
			WithContext("path", path)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, ErrCodeHistory, "cannot reach history database").
			WithContext("path", path)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	s.insertStmt, err = db.Prepare(`
	INSERT INTO task_executions (
		task_id, name, runner_name, runner_type, thread_id,
		started_at, finished_at, duration_ns, panicked
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, ErrCodeHistory, "cannot prepare insert statement")
	}
	return s, nil
}

// Path returns the database path given to Open.
func (s *Store) Path() string { return s.path }

func (s *Store) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Wrap(err, ErrCodeHistory, "cannot create schema_info table")
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, ErrCodeHistory, "cannot read schema version")
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeHistory, "cannot begin migration")
	}
	for v := version; v < currentSchemaVersion; v++ {
		switch v {
		case 0:
			err = migrateToV1(tx)
		default:
			err = errors.New(ErrCodeHistory, "unknown migration path").WithContext("version", v)
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)",
		currentSchemaVersion); err != nil {
		tx.Rollback()
		return errors.Wrap(err, ErrCodeHistory, "cannot record schema version")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeHistory, "cannot commit migration")
	}
	return nil
}

func migrateToV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			runner_name TEXT NOT NULL,
			runner_type TEXT NOT NULL,
			thread_id INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			panicked INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_exec_finished ON task_executions(finished_at)",
		"CREATE INDEX IF NOT EXISTS idx_exec_runner ON task_executions(runner_name, finished_at)",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrap(err, ErrCodeHistory, "migration to v1 failed")
		}
	}
	return nil
}

// Write inserts records in a single transaction.
func (s *Store) Write(records []core.TaskExecutionRecord) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New(ErrCodeHistory, "history store is closed")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeHistory, "cannot begin write")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt := tx.Stmt(s.insertStmt)
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.Exec(
			uint64(r.TaskID),
			r.Name,
			r.RunnerName,
			r.RunnerType,
			r.ThreadID,
			r.StartedAt.UnixNano(),
			r.FinishedAt.UnixNano(),
			int64(r.Duration),
			r.Panicked,
		); err != nil {
			return errors.Wrap(err, ErrCodeHistory, "cannot insert record").
				WithContext("task", r.TaskID.String())
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeHistory, "cannot commit write")
	}
	return nil
}

// Filter selects records for Query. Zero fields do not filter.
type Filter struct {
	RunnerName   string
	RunnerType   string
	Since        time.Time
	PanickedOnly bool
	// Limit defaults to 100.
	Limit int
}

// Query returns matching records, newest first.
func (s *Store) Query(f Filter) ([]core.TaskExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New(ErrCodeHistory, "history store is closed")
	}

	var where []string
	var args []any
	if f.RunnerName != "" {
		where = append(where, "runner_name = ?")
		args = append(args, f.RunnerName)
	}
	if f.RunnerType != "" {
		where = append(where, "runner_type = ?")
		args = append(args, f.RunnerType)
	}
	if !f.Since.IsZero() {
		where = append(where, "finished_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if f.PanickedOnly {
		where = append(where, "panicked = 1")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var q strings.Builder
	q.WriteString(`SELECT task_id, name, runner_name, runner_type, thread_id,
		started_at, finished_at, duration_ns, panicked FROM task_executions`)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY finished_at DESC, id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeHistory, "cannot query records")
	}
	defer rows.Close()

	var out []core.TaskExecutionRecord
	for rows.Next() {
		var (
			r                 core.TaskExecutionRecord
			taskID            uint64
			started, finished int64
			duration          int64
		)
		if err := rows.Scan(&taskID, &r.Name, &r.RunnerName, &r.RunnerType, &r.ThreadID,
			&started, &finished, &duration, &r.Panicked); err != nil {
			return nil, errors.Wrap(err, ErrCodeHistory, "cannot scan record")
		}
		r.TaskID = core.TaskID(taskID)
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.Duration = time.Duration(duration)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, ErrCodeHistory, "cannot read records")
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.New(ErrCodeHistory, "history store is closed")
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM task_executions").Scan(&n); err != nil {
		return 0, errors.Wrap(err, ErrCodeHistory, "cannot count records")
	}
	return n, nil
}

// Cleanup deletes records finished before cutoff and returns how many were
// removed.
func (s *Store) Cleanup(cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.New(ErrCodeHistory, "history store is closed")
	}
	res, err := s.db.Exec("DELETE FROM task_executions WHERE finished_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeHistory, "cannot delete old records")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && s.path != ":memory:" {
		first = errors.Wrap(err, ErrCodeHistory, "cannot checkpoint history database")
	}
	if err := s.insertStmt.Close(); err != nil && first == nil {
		first = errors.Wrap(err, ErrCodeHistory, "cannot close insert statement")
	}
	if err := s.db.Close(); err != nil && first == nil {
		first = errors.Wrap(err, ErrCodeHistory, "cannot close history database")
	}
	return first
}
