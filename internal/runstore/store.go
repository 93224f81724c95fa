// Package runstore persists run reports to SQLite so the history
// endpoints survive process restarts.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a sealed run report and its per-action results
func (s *Store) SaveRun(report *domain.RunReport) error {
	rejections, err := json.Marshal(report.Rejections)
	if err != nil {
		return err
	}

	var analysis string
	if report.Plan != nil {
		analysis = report.Plan.Analysis
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, prompt, status, error, retries, dry_run, rejections, plan_analysis, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			retries = excluded.retries,
			rejections = excluded.rejections,
			finished_at = excluded.finished_at
	`,
		report.ID,
		report.Prompt,
		string(report.Status),
		report.Error,
		report.Retries,
		report.DryRun,
		string(rejections),
		analysis,
		report.CreatedAt,
		report.FinishedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM run_actions WHERE run_id = ?`, report.ID); err != nil {
		return err
	}

	for i, res := range report.Results {
		_, err := tx.Exec(`
			INSERT INTO run_actions (run_id, position, action_id, kind, status, output, stderr, error, exit_code, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.ID,
			i,
			res.ActionID,
			string(res.Kind),
			string(res.Status),
			res.Output,
			res.Stderr,
			res.Error,
			res.ExitCode,
			res.Duration.Milliseconds(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run report by ID, or nil when absent
func (s *Store) GetRun(id string) (*domain.RunReport, error) {
	row := s.db.QueryRow(`
		SELECT id, prompt, status, error, retries, dry_run, rejections, created_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	report, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT action_id, kind, status, output, stderr, error, exit_code, duration_ms
		FROM run_actions WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.ActionResult
		var kind, status string
		var durationMS int64
		if err := rows.Scan(&res.ActionID, &kind, &status, &res.Output, &res.Stderr, &res.Error, &res.ExitCode, &durationMS); err != nil {
			return nil, err
		}
		res.Kind = domain.ActionKind(kind)
		res.Status = domain.ActionStatus(status)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		report.Results = append(report.Results, &res)
	}

	return report, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without their
// per-action results
func (s *Store) ListRuns(limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, prompt, status, error, retries, dry_run, rejections, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.RunReport
	for rows.Next() {
		report, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// CountRuns returns counts per aggregate status
func (s *Store) CountRuns() (map[domain.RunStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// DeleteRunsBefore removes runs created before the cutoff and returns
// how many were deleted
func (s *Store) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	if _, err := s.db.Exec(`DELETE FROM run_actions WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row *sql.Row) (*domain.RunReport, error) {
	return scanInto(row)
}

func scanRunRows(rows *sql.Rows) (*domain.RunReport, error) {
	return scanInto(rows)
}

func scanInto(src scannable) (*domain.RunReport, error) {
	var report domain.RunReport
	var status, rejections string
	var errMsg sql.NullString
	var finishedAt sql.NullTime

	if err := src.Scan(&report.ID, &report.Prompt, &status, &errMsg, &report.Retries, &report.DryRun, &rejections, &report.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}

	report.Status = domain.RunStatus(status)
	if errMsg.Valid {
		report.Error = errMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		report.FinishedAt = &t
	}
	if rejections != "" {
		if err := json.Unmarshal([]byte(rejections), &report.Rejections); err != nil {
			return nil, err
		}
	}
	return &report, nil
}
