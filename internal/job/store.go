package job

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Store is the SQLite-backed job state store. It is the single source of
// truth for job status; the broadcast layer only ever reads it.
type Store struct {
	sql *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	s := &Store{sql: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	_, err := s.sql.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			target_url  TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			result      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create jobs: %w", err)
	}

	_, err = s.sql.Exec(`
		CREATE TABLE IF NOT EXISTS steps (
			job_id      TEXT NOT NULL REFERENCES jobs(id),
			position    INTEGER NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			ts          INTEGER NOT NULL,
			PRIMARY KEY (job_id, position)
		)
	`)
	if err != nil {
		return fmt.Errorf("create steps: %w", err)
	}
	return nil
}

// Create inserts a new pending job.
func (s *Store) Create(rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.sql.Exec(
		`INSERT INTO jobs (id, name, target_url, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.TargetURL, rec.Status.String(), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", rec.ID, err)
	}
	return nil
}

// SetStatus moves a job to a non-terminal status (typically Running).
func (s *Store) SetStatus(id string, status Status) error {
	res, err := s.sql.Exec(`UPDATE jobs SET status = ? WHERE id = ?`, status.String(), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish records a terminal status plus result/error and total duration.
func (s *Store) Finish(id string, success bool, result, errMsg string, duration time.Duration) error {
	status := Completed
	if !success {
		status = Failed
	}
	res, err := s.sql.Exec(
		`UPDATE jobs SET status = ?, result = ?, error = ?, duration_ms = ? WHERE id = ?`,
		status.String(), result, errMsg, duration.Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendStep records a step in arrival order.
func (s *Store) AppendStep(id string, step Step) error {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	_, err := s.sql.Exec(
		`INSERT INTO steps (job_id, position, description, status, duration_ms, ts)
		 VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM steps WHERE job_id = ?), ?, ?, ?, ?)`,
		id, id, step.Description, step.Status.String(), step.DurationMs, step.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append step for %s: %w", id, err)
	}
	return nil
}

// Get returns a snapshot of the job with its step log.
func (s *Store) Get(id string) (*Record, error) {
	rec := &Record{}
	var status string
	var createdAt int64
	err := s.sql.QueryRow(
		`SELECT id, name, target_url, status, result, error, duration_ms, created_at FROM jobs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.TargetURL, &status, &rec.Result, &rec.Error, &rec.DurationMs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job %s: %w", id, err)
	}
	rec.Status = ParseStatus(status)
	rec.CreatedAt = time.UnixMilli(createdAt)

	rows, err := s.sql.Query(
		`SELECT description, status, duration_ms, ts FROM steps WHERE job_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("select steps for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var st Step
		var stStatus string
		var ts int64
		if err := rows.Scan(&st.Description, &stStatus, &st.DurationMs, &ts); err != nil {
			return nil, err
		}
		st.Status = ParseStatus(stStatus)
		st.Timestamp = time.UnixMilli(ts)
		rec.Steps = append(rec.Steps, st)
	}
	return rec, rows.Err()
}

// List returns snapshots of all jobs, newest first, without step logs.
func (s *Store) List() ([]*Record, error) {
	rows, err := s.sql.Query(
		`SELECT id, name, target_url, status, result, error, duration_ms, created_at
		 FROM jobs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec := &Record{}
		var status string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.TargetURL, &status, &rec.Result, &rec.Error, &rec.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		rec.Status = ParseStatus(status)
		rec.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ActiveCount reports jobs that have not reached a terminal status.
func (s *Store) ActiveCount() (int, error) {
	var n int
	err := s.sql.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE status IN ('pending', 'running')`,
	).Scan(&n)
	return n, err
}
