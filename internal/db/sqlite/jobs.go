package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI2HU/gauge/internal/models"
)

type jobRunRow struct {
	ID         string       `db:"id"`
	Job        string       `db:"job"`
	Status     string       `db:"status"`
	Attempt    int          `db:"attempt"`
	Error      string       `db:"error"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

func (r jobRunRow) toJobRun() *models.JobRun {
	run := &models.JobRun{
		ID:        r.ID,
		Job:       r.Job,
		Status:    r.Status,
		Attempt:   r.Attempt,
		Error:     r.Error,
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		run.FinishedAt = &t
	}
	return run
}

func finishedAt(run *models.JobRun) sql.NullTime {
	if run.FinishedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(*run.FinishedAt), Valid: true}
}

// CreateJobRun records the start of a job invocation
func (s *SQLite) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO job_runs (id, job, status, attempt, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Job, run.Status, run.Attempt, run.Error, utc(run.StartedAt), finishedAt(run))
	if err != nil {
		return fmt.Errorf("failed to create job run: %w", err)
	}
	return nil
}

// UpdateJobRun stores the status, attempt, error and finish time of a job run
func (s *SQLite) UpdateJobRun(ctx context.Context, run *models.JobRun) error {
	query := `UPDATE job_runs SET status = ?, attempt = ?, error = ?, finished_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, run.Status, run.Attempt, run.Error, finishedAt(run), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update job run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(sql.ErrNoRows, "job run", run.ID)
	}
	return nil
}

// ListJobRuns lists the most recent runs of a job
func (s *SQLite) ListJobRuns(ctx context.Context, job string, limit int) ([]*models.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []jobRunRow
	query := `SELECT * FROM job_runs WHERE job = ? ORDER BY started_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, job, limit); err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}

	out := make([]*models.JobRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toJobRun())
	}
	return out, nil
}
