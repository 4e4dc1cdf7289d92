package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docforge/docforge/internal/models"
)

const fileColumns = `id, processing_job_id, zip_master_id, gx_bucket_id, file_location,
	file_name, file_size, extension, file_hash, original_content_hash, source_type,
	duplicate_of_file_id, status, error_message, created_at, updated_at`

func scanFile(row pgx.Row) (*models.FileMaster, error) {
	var f models.FileMaster
	err := row.Scan(&f.ID, &f.ProcessingJobID, &f.ZipMasterID, &f.GxBucketID, &f.FileLocation,
		&f.FileName, &f.FileSize, &f.Extension, &f.FileHash, &f.OriginalContentHash, &f.SourceType,
		&f.DuplicateOfFileID, &f.Status, &f.ErrorMessage, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("file master: %w", models.ErrNotFound)
		}
		return nil, models.Transientf("scan file master: %v", err)
	}
	return &f, nil
}

func fileStatusStrings(statuses []models.FileStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateFile inserts a file master and fills in its id. A violation of
// the (bucket, hash) unique index surfaces as models.ErrDuplicate so the
// caller can run winner recovery.
func (q *queries) CreateFile(ctx context.Context, f *models.FileMaster) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO file_master (processing_job_id, zip_master_id, gx_bucket_id, file_location,
			file_name, file_size, extension, file_hash, original_content_hash, source_type,
			duplicate_of_file_id, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		f.ProcessingJobID, f.ZipMasterID, f.GxBucketID, f.FileLocation,
		f.FileName, f.FileSize, f.Extension, f.FileHash, f.OriginalContentHash, f.SourceType,
		f.DuplicateOfFileID, f.Status, f.ErrorMessage)
	if err := row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("file (bucket=%d, hash=%v): %w", f.GxBucketID, f.FileHash, models.ErrDuplicate)
		}
		return models.Transientf("insert file master: %v", err)
	}
	return nil
}

// GetFile loads one file master by id.
func (q *queries) GetFile(ctx context.Context, id int64) (*models.FileMaster, error) {
	return scanFile(q.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_master WHERE id = $1`, id))
}

// AcquireFileLock is the idempotent worker lock: one atomic QUEUED →
// IN_PROGRESS transition. Returns true iff this caller won.
func (q *queries) AcquireFileLock(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = 'IN_PROGRESS', updated_at = now()
		WHERE id = $1 AND status = 'QUEUED'`, id)
	if err != nil {
		return false, models.Transientf("acquire file lock: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindWinner returns the lowest-id live occupant of (bucket, hash), or
// nil when the slot is free. The predicate matches the partial unique
// index exactly; loser rows (FAILED, IGNORED, DUPLICATE, TERMINATED)
// never win.
func (q *queries) FindWinner(ctx context.Context, gxBucketID int64, fileHash string) (*models.FileMaster, error) {
	f, err := scanFile(q.db.QueryRow(ctx, `
		SELECT `+fileColumns+` FROM file_master
		WHERE gx_bucket_id = $1 AND file_hash = $2
		  AND status NOT IN ('FAILED', 'IGNORED', 'DUPLICATE', 'TERMINATED')
		ORDER BY id LIMIT 1`,
		gxBucketID, fileHash))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return f, err
}

// UpdateFileStatus is the compare-and-set transition for file masters.
func (q *queries) UpdateFileStatus(ctx context.Context, id int64, newStatus models.FileStatus, expected []models.FileStatus) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, newStatus, fileStatusStrings(expected))
	if err != nil {
		return false, models.Transientf("update file status: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetFileHashAndSize records the computed hash and true size of a
// direct-upload file. A unique-index collision surfaces as
// models.ErrDuplicate for winner recovery.
func (q *queries) SetFileHashAndSize(ctx context.Context, id int64, fileHash string, size int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE file_master
		SET file_hash = $2, original_content_hash = COALESCE(original_content_hash, $2),
			file_size = $3, updated_at = now()
		WHERE id = $1`,
		id, fileHash, size)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("file %d hash %s: %w", id, fileHash, models.ErrDuplicate)
		}
		return models.Transientf("set file hash: %v", err)
	}
	return nil
}

// MarkFileDuplicate records that this row lost the (bucket, hash) race
// to winnerID.
func (q *queries) MarkFileDuplicate(ctx context.Context, id, winnerID int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE file_master
		SET status = 'DUPLICATE', duplicate_of_file_id = $2, updated_at = now()
		WHERE id = $1`,
		id, winnerID)
	if err != nil {
		return models.Transientf("mark file duplicate: %v", err)
	}
	return nil
}

// FailFile moves a file to FAILED with the error text, unless already in
// a terminal state other than FAILED.
func (q *queries) FailFile(ctx context.Context, id int64, errMsg string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = 'FAILED', error_message = $2, updated_at = now()
		WHERE id = $1 AND status IN ('QUEUED', 'IN_PROGRESS')`,
		id, errMsg)
	if err != nil {
		return false, models.Transientf("fail file: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IgnoreFile marks a file IGNORED with the validation reason.
func (q *queries) IgnoreFile(ctx context.Context, id int64, reason string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = 'IGNORED', error_message = $2, updated_at = now()
		WHERE id = $1`,
		id, reason)
	if err != nil {
		return models.Transientf("ignore file: %v", err)
	}
	return nil
}

// RequeueFile resets a FAILED file to QUEUED and clears its error. Used
// by the user-driven retry path only.
func (q *queries) RequeueFile(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = 'QUEUED', error_message = '', updated_at = now()
		WHERE id = $1 AND status = 'FAILED'`, id)
	if err != nil {
		return false, models.Transientf("requeue file: %v", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListFilesByJob returns all file masters of a job.
func (q *queries) ListFilesByJob(ctx context.Context, jobID int64) ([]*models.FileMaster, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file_master WHERE processing_job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, models.Transientf("list files: %v", err)
	}
	defer rows.Close()

	var files []*models.FileMaster
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateStatusForIDs bulk-transitions the given rows, touching only rows
// whose current status is in expected. Used by admin termination.
func (q *queries) UpdateStatusForIDs(ctx context.Context, ids []int64, newStatus models.FileStatus, expected []models.FileStatus) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE file_master SET status = $2, updated_at = now()
		WHERE id = ANY($1) AND status = ANY($3)`,
		ids, newStatus, fileStatusStrings(expected))
	if err != nil {
		return 0, models.Transientf("bulk update file status: %v", err)
	}
	return tag.RowsAffected(), nil
}

// TerminateFilesForJobs bulk-moves in-flight file masters of the given
// jobs to TERMINATED. A nil jobIDs slice sweeps every job.
func (q *queries) TerminateFilesForJobs(ctx context.Context, jobIDs []int64) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if jobIDs == nil {
		tag, err = q.db.Exec(ctx, `
			UPDATE file_master SET status = 'TERMINATED', updated_at = now()
			WHERE status = ANY($1)`,
			fileStatusStrings(models.TerminableFileStatuses))
	} else {
		tag, err = q.db.Exec(ctx, `
			UPDATE file_master SET status = 'TERMINATED', updated_at = now()
			WHERE processing_job_id = ANY($1) AND status = ANY($2)`,
			jobIDs, fileStatusStrings(models.TerminableFileStatuses))
	}
	if err != nil {
		return 0, models.Transientf("terminate files: %v", err)
	}
	return tag.RowsAffected(), nil
}
