package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docforge/docforge/internal/models"
)

const zipColumns = `id, processing_job_id, gx_bucket_id, original_file_path,
	original_file_name, file_size, status, error_message, created_at, updated_at`

func scanZip(row pgx.Row) (*models.ZipMaster, error) {
	var z models.ZipMaster
	err := row.Scan(&z.ID, &z.ProcessingJobID, &z.GxBucketID, &z.OriginalFilePath,
		&z.OriginalFileName, &z.FileSize, &z.Status, &z.ErrorMessage, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("zip master: %w", models.ErrNotFound)
		}
		return nil, models.Transientf("scan zip master: %v", err)
	}
	return &z, nil
}

func zipStatusStrings(statuses []models.ZipStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// UpsertZipForJob inserts a zip master for the job, or returns the
// existing one. Idempotent on processing_job_id so that re-triggering a
// job never creates a second row.
func (q *queries) UpsertZipForJob(ctx context.Context, z *models.ZipMaster) (*models.ZipMaster, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO zip_master (processing_job_id, gx_bucket_id, original_file_path,
			original_file_name, file_size, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (processing_job_id) DO UPDATE SET updated_at = now()
		RETURNING `+zipColumns,
		z.ProcessingJobID, z.GxBucketID, z.OriginalFilePath,
		z.OriginalFileName, z.FileSize, z.Status, z.ErrorMessage)
	return scanZip(row)
}

// GetZip loads one zip master by id.
func (q *queries) GetZip(ctx context.Context, id int64) (*models.ZipMaster, error) {
	return scanZip(q.db.QueryRow(ctx,
		`SELECT `+zipColumns+` FROM zip_master WHERE id = $1`, id))
}

// UpdateZipStatus is the compare-and-set transition for zip masters.
func (q *queries) UpdateZipStatus(ctx context.Context, id int64, newStatus models.ZipStatus, expected []models.ZipStatus) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE zip_master SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, newStatus, zipStatusStrings(expected))
	if err != nil {
		return false, models.Transientf("update zip status: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FailZip moves a zip master to EXTRACTION_FAILED with the error text,
// unless it is already terminal.
func (q *queries) FailZip(ctx context.Context, id int64, errMsg string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE zip_master SET status = 'EXTRACTION_FAILED', error_message = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('EXTRACTION_SUCCESS', 'EXTRACTION_FAILED', 'TERMINATED')`,
		id, errMsg)
	if err != nil {
		return false, models.Transientf("fail zip: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListZipsByJob returns all zip masters of a job (at most one today, but
// the lifecycle scheduler treats it as a list).
func (q *queries) ListZipsByJob(ctx context.Context, jobID int64) ([]*models.ZipMaster, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+zipColumns+` FROM zip_master WHERE processing_job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, models.Transientf("list zips: %v", err)
	}
	defer rows.Close()

	var zips []*models.ZipMaster
	for rows.Next() {
		z, err := scanZip(rows)
		if err != nil {
			return nil, err
		}
		zips = append(zips, z)
	}
	return zips, rows.Err()
}

// TerminateZipsForJobs bulk-moves in-flight zip masters of the given
// jobs to TERMINATED. A nil jobIDs slice sweeps every job.
func (q *queries) TerminateZipsForJobs(ctx context.Context, jobIDs []int64) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if jobIDs == nil {
		tag, err = q.db.Exec(ctx, `
			UPDATE zip_master SET status = 'TERMINATED', updated_at = now()
			WHERE status = ANY($1)`,
			zipStatusStrings(models.TerminableZipStatuses))
	} else {
		tag, err = q.db.Exec(ctx, `
			UPDATE zip_master SET status = 'TERMINATED', updated_at = now()
			WHERE processing_job_id = ANY($1) AND status = ANY($2)`,
			jobIDs, zipStatusStrings(models.TerminableZipStatuses))
	}
	if err != nil {
		return 0, models.Transientf("terminate zips: %v", err)
	}
	return tag.RowsAffected(), nil
}
