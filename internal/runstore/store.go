// Package runstore keeps the history of batches and their per-region
// results in SQLite.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/phuslu/log"
	_ "modernc.org/sqlite"
)

// ErrBatchNotFound is returned when no batch matches an ID or prefix
var ErrBatchNotFound = errors.New("batch not found")

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// BatchRecord is a persisted batch summary
type BatchRecord struct {
	ID          string
	Name        string
	Concurrency int
	Units       int
	StartedAt   time.Time
	FinishedAt  time.Time
	Completed   int
	Failed      int
	TimedOut    int
}

// Duration returns how long the batch ran; zero while unfinished
func (b BatchRecord) Duration() time.Duration {
	if b.StartedAt.IsZero() || b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: would be a separate database
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch inserts or updates a batch and its outcome counts
func (s *Store) SaveBatch(b *domain.Batch) error {
	sum := b.Summary()
	_, err := s.db.Exec(`
		INSERT INTO batches (id, name, concurrency, units, started_at, finished_at, runs_completed, runs_failed, runs_timed_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			runs_completed = excluded.runs_completed,
			runs_failed = excluded.runs_failed,
			runs_timed_out = excluded.runs_timed_out
	`,
		b.ID,
		b.Name,
		b.Concurrency,
		len(b.Units),
		toMillis(b.StartedAt),
		toMillis(b.FinishedAt),
		sum.Completed,
		sum.Failed,
		sum.TimedOut,
	)
	return err
}

// RecordResult stores one region's result. A second result for the same
// region of a batch is ignored.
func (s *Store) RecordResult(batchID string, r domain.RunResult) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (batch_id, region, work_dir, executable, start_year, end_year, status, failure, reason, days_completed, total_days, exit_code, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, region) DO NOTHING
	`,
		batchID,
		r.Unit.Region,
		r.Unit.WorkDir,
		r.Unit.Executable,
		r.Unit.StartYear,
		r.Unit.EndYear,
		string(r.Status),
		string(r.Failure),
		r.Reason,
		r.DaysCompleted,
		r.TotalDays,
		r.ExitCode,
		toMillis(r.StartedAt),
		toMillis(r.FinishedAt),
	)
	return err
}

// ResultHook persists every result as it arrives. Errors are logged; a
// broken history database never fails a batch.
func (s *Store) ResultHook() func(*domain.Batch, domain.RunResult) {
	return func(b *domain.Batch, r domain.RunResult) {
		if err := s.SaveBatch(b); err != nil {
			log.Error().Err(err).Str("component", "runstore").Str("batch", b.ID).Msg("saving batch")
			return
		}
		if err := s.RecordResult(b.ID, r); err != nil {
			log.Error().Err(err).Str("component", "runstore").Str("batch", b.ID).Str("region", r.Unit.Region).Msg("saving result")
		}
	}
}

// ListBatches returns the most recent batches first. limit <= 0 returns all.
func (s *Store) ListBatches(limit int) ([]BatchRecord, error) {
	query := `SELECT id, name, concurrency, units, started_at, finished_at, runs_completed, runs_failed, runs_timed_out
		FROM batches ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// GetBatch finds a batch by full ID or unique ID prefix
func (s *Store) GetBatch(idOrPrefix string) (BatchRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, concurrency, units, started_at, finished_at, runs_completed, runs_failed, runs_timed_out
		FROM batches WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`, idOrPrefix, idOrPrefix+"%")
	if err != nil {
		return BatchRecord{}, err
	}
	defer rows.Close()

	var found []BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return BatchRecord{}, err
		}
		if b.ID == idOrPrefix {
			return b, nil
		}
		found = append(found, b)
	}
	if err := rows.Err(); err != nil {
		return BatchRecord{}, err
	}

	switch len(found) {
	case 0:
		return BatchRecord{}, fmt.Errorf("%w: %s", ErrBatchNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return BatchRecord{}, fmt.Errorf("batch prefix %q is ambiguous", idOrPrefix)
	}
}

const resultColumns = `region, work_dir, executable, start_year, end_year, status, failure, reason, days_completed, total_days, exit_code, started_at, finished_at`

// GetBatchResults returns a batch's results in the order they were recorded
func (s *Store) GetBatchResults(batchID string) ([]domain.RunResult, error) {
	return s.queryResults(`SELECT `+resultColumns+` FROM runs WHERE batch_id = ? ORDER BY id`, batchID)
}

// RegionHistory returns the latest results for one region across batches,
// newest first.
func (s *Store) RegionHistory(region string, limit int) ([]domain.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryResults(`SELECT `+resultColumns+` FROM runs WHERE region = ? ORDER BY id DESC LIMIT ?`, region, limit)
}

func (s *Store) queryResults(query string, args ...interface{}) ([]domain.RunResult, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.RunResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row scanner) (BatchRecord, error) {
	var b BatchRecord
	var started, finished int64
	err := row.Scan(&b.ID, &b.Name, &b.Concurrency, &b.Units, &started, &finished, &b.Completed, &b.Failed, &b.TimedOut)
	if err != nil {
		return BatchRecord{}, err
	}
	b.StartedAt = fromMillis(started)
	b.FinishedAt = fromMillis(finished)
	return b, nil
}

func scanResult(row scanner) (domain.RunResult, error) {
	var r domain.RunResult
	var status string
	var workDir, exe, failure, reason sql.NullString
	var started, finished int64

	err := row.Scan(&r.Unit.Region, &workDir, &exe, &r.Unit.StartYear, &r.Unit.EndYear, &status, &failure, &reason,
		&r.DaysCompleted, &r.TotalDays, &r.ExitCode, &started, &finished)
	if err != nil {
		return domain.RunResult{}, err
	}
	r.Unit.WorkDir = workDir.String
	r.Unit.Executable = exe.String
	r.Reason = reason.String
	r.Status = domain.RunStatus(status)
	r.Failure = domain.FailureKind(failure.String)
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		r.Elapsed = r.FinishedAt.Sub(r.StartedAt)
	}
	return r, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
