// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"time"

	"github.com/imagestudio/studio-go/internal/models"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordJob inserts a new history row for a submitted job and returns
// its id. TaskID may be empty for sync-mode jobs.
func (s *Store) RecordJob(taskID, filename, operation, model string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO processing_history (task_id, filename, operation, model, status, created_at)
		VALUES (?, ?, ?, ?, 'uploading', ?)`,
		taskID, filename, operation, model, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateJobStatus records the latest status for a job.
func (s *Store) UpdateJobStatus(id int64, status string, progress float64, message string) error {
	_, err := s.db.Exec(`
		UPDATE processing_history SET status = ?, progress = ?, message = ? WHERE id = ?`,
		status, progress, message, id)
	return err
}

// CompleteJob marks a job terminal, recording its output and duration.
// Progress snaps to 100 only for completed jobs; failures keep the last
// reported value.
func (s *Store) CompleteJob(id int64, status, outputFilename string, duration time.Duration) error {
	_, err := s.db.Exec(`
		UPDATE processing_history
		SET status = ?,
		    progress = CASE WHEN ? = 'completed' THEN 100 ELSE progress END,
		    output_filename = ?, duration_ms = ?
		WHERE id = ?`,
		status, status, outputFilename, duration.Milliseconds(), id)
	return err
}

// GetJobByTaskID returns the most recent history row for a task id, or
// sql.ErrNoRows if the task was never recorded.
func (s *Store) GetJobByTaskID(taskID string) (*models.HistoryEntry, error) {
	var e models.HistoryEntry
	err := s.db.QueryRow(`
		SELECT id, task_id, filename, operation, model, status, progress, message, output_filename, duration_ms, created_at
		FROM processing_history WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID).
		Scan(&e.ID, &e.TaskID, &e.Filename, &e.Operation, &e.Model,
			&e.Status, &e.Progress, &e.Message, &e.OutputFilename, &e.DurationMS, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetHistory returns the most recent jobs, newest first.
func (s *Store) GetHistory(limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, filename, operation, model, status, progress, message, output_filename, duration_ms, created_at
		FROM processing_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Filename, &e.Operation, &e.Model,
			&e.Status, &e.Progress, &e.Message, &e.OutputFilename, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats summarizes the recorded history per operation.
type Stats struct {
	TotalJobs     int64            `json:"total_jobs"`
	CompletedJobs int64            `json:"completed_jobs"`
	FailedJobs    int64            `json:"failed_jobs"`
	ByOperation   map[string]int64 `json:"by_operation"`
	AvgDurationMS int64            `json:"avg_duration_ms"`
}

// GetStats aggregates the processing history.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByOperation: make(map[string]int64)}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		       CAST(COALESCE(AVG(CASE WHEN status = 'completed' THEN duration_ms END), 0) AS INTEGER)
		FROM processing_history`).
		Scan(&stats.TotalJobs, &stats.CompletedJobs, &stats.FailedJobs, &stats.AvgDurationMS)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT operation, COUNT(*) FROM processing_history GROUP BY operation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var op string
		var count int64
		if err := rows.Scan(&op, &count); err != nil {
			return nil, err
		}
		stats.ByOperation[op] = count
	}
	return stats, rows.Err()
}

// PruneHistory deletes rows older than the cutoff and returns how many
// were removed. Used by the retention job.
func (s *Store) PruneHistory(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM processing_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
