package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/transdoc-go/internal/models"
)

const jobColumns = `id, title, source_path, status, progress, error_message, metadata, collection_id, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var errMsg sql.NullString
	var metadata string
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Title, &job.SourcePath, &job.Status, &job.Progress, &errMsg,
		&metadata, &job.CollectionID, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.ErrorMessage = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	job.Metadata = map[string]any{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for job %d: %w", job.ID, err)
		}
	}
	return &job, nil
}

// CreateJob inserts a new job in the Pending state.
func (s *Store) CreateJob(title, sourcePath string, collectionID int64) (*models.Job, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO jobs (title, source_path, status, progress, metadata, collection_id, created_at, updated_at)
		VALUES (?, ?, ?, 0, '{}', ?, ?, ?)`,
		title, sourcePath, models.JobPending, collectionID, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Job{
		ID:           id,
		Title:        title,
		SourcePath:   sourcePath,
		Status:       models.JobPending,
		Metadata:     map[string]any{},
		CollectionID: collectionID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetJob retrieves a single job by ID.
func (s *Store) GetJob(id int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(limit int) ([]*models.Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobsByStatus returns jobs in the given status, oldest first.
func (s *Store) ListJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus moves a job along the state machine. A progress below zero
// keeps the stored progress. errMsg is only written when non-empty.
func (s *Store) UpdateJobStatus(id int64, status models.JobStatus, progress int, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.JobStatus
	err = tx.QueryRow("SELECT status FROM jobs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if !models.CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now()
	var completedAt any
	if status == models.JobCompleted {
		completedAt = now
	}
	_, err = tx.Exec(`
		UPDATE jobs SET
			status = ?,
			progress = CASE WHEN ? < 0 THEN progress ELSE ? END,
			error_message = CASE WHEN ? = '' THEN error_message ELSE ? END,
			completed_at = COALESCE(?, completed_at),
			updated_at = ?
		WHERE id = ?`,
		status, progress, progress, errMsg, errMsg, completedAt, now, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// MergeJobMetadata merges patch into the job's metadata map.
func (s *Store) MergeJobMetadata(id int64, patch map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow("SELECT metadata FROM jobs WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	metadata := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return fmt.Errorf("decode metadata for job %d: %w", id, err)
		}
	}
	for k, v := range patch {
		metadata[k] = v
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE jobs SET metadata = ?, updated_at = ? WHERE id = ?", string(encoded), time.Now(), id); err != nil {
		return err
	}
	return tx.Commit()
}

// FailInterruptedJobs marks every job caught between Pending and a terminal
// state as Failed. It returns the number of rows touched.
func (s *Store) FailInterruptedJobs(message string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		WHERE status IN (?, ?, ?)`,
		models.JobFailed, message, time.Now(),
		models.JobPreprocessing, models.JobExtracting, models.JobTranslating)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteJob removes a job and, through cascading keys, its documents.
func (s *Store) DeleteJob(id int64) error {
	res, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}
