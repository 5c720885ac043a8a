package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/blockrt/internal/engine"
)

var _ engine.Scheduler = (*Scheduler)(nil)

// ErrJobNotPending is returned when cancelling or completing a job that
// already finished or does not exist.
var ErrJobNotPending = errors.New("job not pending")

// ScheduledJob is a job row as stored.
type ScheduledJob struct {
	ID string
	engine.Job
}

// Scheduler is the job service backed by the jobs table. It only records
// jobs; a host polls Due and runs them.
type Scheduler struct {
	s *Store
}

// Scheduler returns the job service.
func (s *Store) Scheduler() *Scheduler {
	return &Scheduler{s: s}
}

// Schedule stores job and returns its id, a UUIDv7.
func (sc *Scheduler) Schedule(ctx context.Context, job engine.Job) (string, error) {
	if job.Name == "" {
		return "", fmt.Errorf("schedule: job name is required")
	}
	data, err := canonicalText(job.Data)
	if err != nil {
		return "", fmt.Errorf("schedule %s: data: %w", job.Name, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", job.Name, err)
	}

	_, err = sc.s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, run_at, data) VALUES (?, ?, ?, ?)
	`, id.String(), job.Name, job.RunAt.UnixMilli(), data)
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return id.String(), nil
}

// Cancel marks a pending job cancelled.
func (sc *Scheduler) Cancel(ctx context.Context, id string) error {
	return sc.finish(ctx, id, "cancelled")
}

// Complete marks a pending job done.
func (sc *Scheduler) Complete(ctx context.Context, id string) error {
	return sc.finish(ctx, id, "done")
}

func (sc *Scheduler) finish(ctx context.Context, id, state string) error {
	res, err := sc.s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ? WHERE id = ? AND state = 'pending'
	`, state, id)
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", id, state, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", id, state, err)
	}
	if n == 0 {
		return fmt.Errorf("mark job %s %s: %w", id, state, ErrJobNotPending)
	}
	return nil
}

// Due returns pending jobs whose run time is at or before now, oldest
// first. Ties are broken by id, which is time-ordered.
func (sc *Scheduler) Due(ctx context.Context, now time.Time) ([]ScheduledJob, error) {
	rows, err := sc.s.db.QueryContext(ctx, `
		SELECT id, name, run_at, data FROM jobs
		WHERE state = 'pending' AND run_at <= ?
		ORDER BY run_at ASC, id COLLATE BINARY ASC
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	jobs := []ScheduledJob{}
	for rows.Next() {
		var (
			j     ScheduledJob
			runAt int64
			data  string
		)
		if err := rows.Scan(&j.ID, &j.Name, &runAt, &data); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.RunAt = time.UnixMilli(runAt)
		j.Data = json.RawMessage(data)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
