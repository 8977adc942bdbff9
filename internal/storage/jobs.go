package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 3
	maxBackoff         = 5 * time.Minute
)

const jobColumns = `id, type, coalesce_key, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

// EnqueueJob adds job as pending. When job.CoalesceKey is set, pending jobs of
// the same type and key are dropped first: only the newest write to a target
// is worth sending.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now()
	runAfter := job.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning enqueue: %w", err)
	}
	defer tx.Rollback()

	if job.CoalesceKey != "" {
		if _, err := tx.Exec(`DELETE FROM jobs WHERE type = ? AND coalesce_key = ? AND status = ?`,
			job.Type, job.CoalesceKey, JobPending); err != nil {
			return fmt.Errorf("coalescing %s jobs: %w", job.Type, err)
		}
	}
	if _, err := tx.Exec(`
		INSERT INTO jobs (id, type, coalesce_key, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.CoalesceKey, job.PayloadJSON, JobPending, maxAttempts,
		formatTime(runAfter), formatTime(now), formatTime(now),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func scanJob(r rowScanner) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	if err := r.Scan(&j.ID, &j.Type, &j.CoalesceKey, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError); err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String

	var err error
	if j.RunAfter, err = parseTime("run_after", runAfter); err != nil {
		return Job{}, err
	}
	if j.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Job{}, err
	}
	if j.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Job{}, err
	}
	return j, nil
}

// ClaimNextJob marks the oldest due pending job of one of types as running
// and returns it, or nil when none is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	now := time.Now()

	args := []any{JobPending, formatTime(now)}
	for _, t := range types {
		args = append(args, t)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = ? AND run_after <= ? AND type IN (?` + strings.Repeat(",?", len(types)-1) + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim: %w", err)
	}
	defer tx.Rollback()

	j, err := scanJob(tx.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		JobRunning, formatTime(now), j.ID, JobPending)
	if err != nil {
		return nil, fmt.Errorf("marking job %s running: %w", j.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = JobRunning
	j.UpdatedAt = now.UTC().Truncate(time.Second)
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		JobCompleted, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// backoff doubles per attempt from 2s, capped at maxBackoff.
func backoff(attempts int) time.Duration {
	d := 2 * time.Second
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// FailJob records a failed attempt. The job goes back to pending with
// exponential backoff until it runs out of attempts, then stays failed.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now()
	attempts++
	status, runAfter := JobPending, now.Add(backoff(attempts))
	if attempts >= maxAttempts {
		status, runAfter = JobFailed, now
	}
	if _, err := tx.Exec(`
		UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ?
		WHERE id = ?`,
		status, attempts, errMsg, formatTime(runAfter), formatTime(now), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListJobs returns jobs in status, newest first. An empty status lists all.
func (s *Store) ListJobs(status string, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus returns the number of jobs in each status.
func (s *Store) CountJobsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// RetryFailedJobs moves failed jobs back to pending with a fresh attempt budget.
func (s *Store) RetryFailedJobs() (int, error) {
	now := formatTime(time.Now())
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, attempts = 0, run_after = ?, updated_at = ? WHERE status = ?`,
		JobPending, now, now, JobFailed)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
