package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/docforge/docforge/internal/models"
)

const jobColumns = `id, original_filename, file_location, status, current_stage,
	error_message, remark, gx_bucket_id, skip_gx_process, created_at, updated_at`

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(&j.ID, &j.OriginalFilename, &j.FileLocation, &j.Status, &j.CurrentStage,
		&j.ErrorMessage, &j.Remark, &j.GxBucketID, &j.SkipGxProcess, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job: %w", models.ErrNotFound)
		}
		return nil, models.Transientf("scan job: %v", err)
	}
	return &j, nil
}

func jobStatusStrings(statuses []models.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateJob inserts a new job and fills in its id and timestamps.
func (q *queries) CreateJob(ctx context.Context, j *models.ProcessingJob) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO processing_job (original_filename, file_location, status, current_stage,
			error_message, remark, gx_bucket_id, skip_gx_process)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		j.OriginalFilename, j.FileLocation, j.Status, j.CurrentStage,
		j.ErrorMessage, j.Remark, j.GxBucketID, j.SkipGxProcess)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return models.Transientf("insert job: %v", err)
	}
	return nil
}

// GetJob loads one job by id.
func (q *queries) GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error) {
	return scanJob(q.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_job WHERE id = $1`, id))
}

// UpdateJobLocation sets the object key of the uploaded source.
func (q *queries) UpdateJobLocation(ctx context.Context, id int64, key string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE processing_job SET file_location = $2, updated_at = now() WHERE id = $1`,
		id, key)
	if err != nil {
		return models.Transientf("update job location: %v", err)
	}
	return nil
}

// UpdateJobStage records free-form progress text.
func (q *queries) UpdateJobStage(ctx context.Context, id int64, stage string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE processing_job SET current_stage = $2, updated_at = now() WHERE id = $1`,
		id, stage)
	if err != nil {
		return models.Transientf("update job stage: %v", err)
	}
	return nil
}

// UpdateJobStatus is the compare-and-set transition: the row moves to
// newStatus only if its current status is in expected. Returns true when
// exactly one row changed.
func (q *queries) UpdateJobStatus(ctx context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE processing_job SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, newStatus, jobStatusStrings(expected))
	if err != nil {
		return false, models.Transientf("update job status: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishJob moves a job to a terminal status with its error message and
// remark, guarded so a prior terminal status is never overwritten.
func (q *queries) FinishJob(ctx context.Context, id int64, status models.JobStatus, errMsg, remark string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE processing_job
		SET status = $2, error_message = $3, remark = $4, updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'PARTIAL_SUCCESS', 'FAILED', 'TERMINATED')`,
		id, status, errMsg, remark)
	if err != nil {
		return false, models.Transientf("finish job: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListJobsByStatus returns all jobs in any of the given statuses.
func (q *queries) ListJobsByStatus(ctx context.Context, statuses []models.JobStatus) ([]*models.ProcessingJob, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+jobColumns+` FROM processing_job WHERE status = ANY($1) ORDER BY id`,
		jobStatusStrings(statuses))
	if err != nil {
		return nil, models.Transientf("list jobs: %v", err)
	}
	defer rows.Close()

	var jobs []*models.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// TerminateActiveJobs bulk-moves every terminable job to TERMINATED and
// returns how many rows changed.
func (q *queries) TerminateActiveJobs(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE processing_job SET status = 'TERMINATED', updated_at = now()
		WHERE status = ANY($1)`,
		jobStatusStrings(models.TerminableJobStatuses))
	if err != nil {
		return 0, models.Transientf("terminate active jobs: %v", err)
	}
	return tag.RowsAffected(), nil
}

// FailStalePendingJobs marks jobs stuck in PENDING_UPLOAD since before
// cutoff as FAILED with the given reason. Returns the number swept.
func (q *queries) FailStalePendingJobs(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE processing_job
		SET status = 'FAILED', error_message = $2, updated_at = now()
		WHERE status = 'PENDING_UPLOAD' AND created_at < $1`,
		cutoff, reason)
	if err != nil {
		return 0, models.Transientf("fail stale jobs: %v", err)
	}
	return tag.RowsAffected(), nil
}
