// Package jobstore persists the optimistic report of each submitted bulk job
// in SQLite until the job is polled to completion or ages out.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"b2b-pricing/internal/model"
)

// Retention is how long pending reports are kept.
const Retention = 7 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS pending_reports (
	job_id     TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	report     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_reports_created ON pending_reports(created_at);
`

// Store is a SQLite-backed pending report store.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn, now: time.Now}, nil
}

// Close checkpoints the WAL and closes the database connection.
func (s *Store) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// SaveReport stores report under jobID, replacing any earlier record.
func (s *Store) SaveReport(ctx context.Context, jobID string, report *model.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending_reports (job_id, run_id, report, created_at) VALUES (?, ?, ?, ?)`,
		jobID, report.RunID, string(data), s.now().Unix())
	if err != nil {
		return fmt.Errorf("save report %s: %w", jobID, err)
	}
	return nil
}

// LoadReport returns the report stored under jobID.
func (s *Store) LoadReport(ctx context.Context, jobID string) (*model.Report, error) {
	var data string
	err := s.conn.QueryRowContext(ctx,
		`SELECT report FROM pending_reports WHERE job_id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("report for job " + jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", jobID, err)
	}

	var report model.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", jobID, err)
	}
	return &report, nil
}

// Prune deletes reports saved more than olderThan ago and returns how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).Unix()
	res, err := s.conn.ExecContext(ctx, `DELETE FROM pending_reports WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return res.RowsAffected()
}
