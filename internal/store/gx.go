package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docforge/docforge/internal/models"
)

const gxColumns = `id, source_file_id, gx_bucket_id, file_location, processed_file_name,
	file_size, extension, status, gx_process_id, error_message, created_at, updated_at`

func scanGx(row pgx.Row) (*models.GxMaster, error) {
	var g models.GxMaster
	err := row.Scan(&g.ID, &g.SourceFileID, &g.GxBucketID, &g.FileLocation, &g.ProcessedFileName,
		&g.FileSize, &g.Extension, &g.Status, &g.GxProcessID, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gx master: %w", models.ErrNotFound)
		}
		return nil, models.Transientf("scan gx master: %v", err)
	}
	return &g, nil
}

func gxStatusStrings(statuses []models.GxStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateGx inserts a gx master and fills in its id.
func (q *queries) CreateGx(ctx context.Context, g *models.GxMaster) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO gx_master (source_file_id, gx_bucket_id, file_location, processed_file_name,
			file_size, extension, status, gx_process_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		g.SourceFileID, g.GxBucketID, g.FileLocation, g.ProcessedFileName,
		g.FileSize, g.Extension, g.Status, g.GxProcessID, g.ErrorMessage)
	if err := row.Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return models.Transientf("insert gx master: %v", err)
	}
	return nil
}

// GetGx loads one gx master by id.
func (q *queries) GetGx(ctx context.Context, id int64) (*models.GxMaster, error) {
	return scanGx(q.db.QueryRow(ctx,
		`SELECT `+gxColumns+` FROM gx_master WHERE id = $1`, id))
}

// UpdateGxStatus is the compare-and-set transition for gx masters.
func (q *queries) UpdateGxStatus(ctx context.Context, id int64, newStatus models.GxStatus, expected []models.GxStatus) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE gx_master SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, newStatus, gxStatusStrings(expected))
	if err != nil {
		return false, models.Transientf("update gx status: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetGxStatusMessage persists a polled status together with any status
// message the GX API reported.
func (q *queries) SetGxStatusMessage(ctx context.Context, id int64, status models.GxStatus, message string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE gx_master SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		id, status, message)
	if err != nil {
		return models.Transientf("set gx status: %v", err)
	}
	return nil
}

// MarkGxUploaded records a successful artifact upload: the row becomes
// QUEUED_FOR_UPLOAD and is picked up by the submission poller.
func (q *queries) MarkGxUploaded(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE gx_master SET status = 'QUEUED_FOR_UPLOAD', updated_at = now()
		WHERE id = $1`,
		id)
	if err != nil {
		return models.Transientf("mark gx uploaded: %v", err)
	}
	return nil
}

// FailGx records an upload or polling failure on the gx row alone; job
// status is never touched here.
func (q *queries) FailGx(ctx context.Context, id int64, errMsg string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE gx_master SET status = 'ERROR', error_message = $2, updated_at = now()
		WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return models.Transientf("fail gx: %v", err)
	}
	return nil
}

// SetGxProcessID records the process id GX assigned at submission.
func (q *queries) SetGxProcessID(ctx context.Context, id int64, processID string, status models.GxStatus) error {
	_, err := q.db.Exec(ctx, `
		UPDATE gx_master SET gx_process_id = $2, status = $3, updated_at = now()
		WHERE id = $1`,
		id, processID, status)
	if err != nil {
		return models.Transientf("set gx process id: %v", err)
	}
	return nil
}

// RequeueGx resets an ERROR gx row to QUEUED_FOR_UPLOAD and clears its
// error. Used by the user-driven retry path only.
func (q *queries) RequeueGx(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE gx_master SET status = 'QUEUED_FOR_UPLOAD', error_message = '', updated_at = now()
		WHERE id = $1 AND status = 'ERROR'`, id)
	if err != nil {
		return false, models.Transientf("requeue gx: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListGxByStatus returns all gx masters in any of the given statuses.
func (q *queries) ListGxByStatus(ctx context.Context, statuses []models.GxStatus) ([]*models.GxMaster, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+gxColumns+` FROM gx_master WHERE status = ANY($1) ORDER BY id`,
		gxStatusStrings(statuses))
	if err != nil {
		return nil, models.Transientf("list gx by status: %v", err)
	}
	defer rows.Close()
	return collectGx(rows)
}

// ListGxByJob returns all gx masters whose source file belongs to jobID.
func (q *queries) ListGxByJob(ctx context.Context, jobID int64) ([]*models.GxMaster, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+gxPrefixedColumns+` FROM gx_master g
		JOIN file_master f ON f.id = g.source_file_id
		WHERE f.processing_job_id = $1 ORDER BY g.id`, jobID)
	if err != nil {
		return nil, models.Transientf("list gx by job: %v", err)
	}
	defer rows.Close()
	return collectGx(rows)
}

const gxPrefixedColumns = `g.id, g.source_file_id, g.gx_bucket_id, g.file_location,
	g.processed_file_name, g.file_size, g.extension, g.status, g.gx_process_id,
	g.error_message, g.created_at, g.updated_at`

func collectGx(rows pgx.Rows) ([]*models.GxMaster, error) {
	var gxs []*models.GxMaster
	for rows.Next() {
		g, err := scanGx(rows)
		if err != nil {
			return nil, err
		}
		gxs = append(gxs, g)
	}
	return gxs, rows.Err()
}

// TerminateGxForJobs bulk-moves QUEUED_FOR_UPLOAD gx masters of the
// given jobs to TERMINATED. A nil jobIDs slice sweeps every job.
func (q *queries) TerminateGxForJobs(ctx context.Context, jobIDs []int64) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if jobIDs == nil {
		tag, err = q.db.Exec(ctx, `
			UPDATE gx_master SET status = 'TERMINATED', updated_at = now()
			WHERE status = 'QUEUED_FOR_UPLOAD'`)
	} else {
		tag, err = q.db.Exec(ctx, `
			UPDATE gx_master g SET status = 'TERMINATED', updated_at = now()
			FROM file_master f
			WHERE f.id = g.source_file_id AND f.processing_job_id = ANY($1)
				AND g.status = 'QUEUED_FOR_UPLOAD'`,
			jobIDs)
	}
	if err != nil {
		return 0, models.Transientf("terminate gx: %v", err)
	}
	return tag.RowsAffected(), nil
}
