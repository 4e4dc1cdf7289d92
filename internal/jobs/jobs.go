// Package jobs implements job orchestration: job creation with
// presigned uploads (single PUT and multipart), processing trigger
// routing, and download URL resolution.
package jobs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/storage"
	"github.com/docforge/docforge/internal/store"
	"github.com/docforge/docforge/internal/validation"
)

// Tx is the transactional surface job creation and triggering need,
// satisfied by *store.Tx.
type Tx interface {
	CreateJob(ctx context.Context, j *models.ProcessingJob) error
	UpdateJobLocation(ctx context.Context, id int64, key string) error
	UpdateJobStatus(ctx context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error)
	UpsertZipForJob(ctx context.Context, z *models.ZipMaster) (*models.ZipMaster, error)
	CreateFile(ctx context.Context, f *models.FileMaster) error
	AfterCommit(fn func(context.Context))
}

// TxRunner runs fn inside one transaction whose after-commit hooks fire
// only on success.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// StoreTxRunner adapts *store.Store to TxRunner.
type StoreTxRunner struct {
	Store *store.Store
}

func (r StoreTxRunner) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.Store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return fn(ctx, tx)
	})
}

// Store is the non-transactional persistence surface, satisfied by
// *store.Store.
type Store interface {
	GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error)
	GetFile(ctx context.Context, id int64) (*models.FileMaster, error)
	GetGx(ctx context.Context, id int64) (*models.GxMaster, error)
	UpdateJobStatus(ctx context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error)
	FinishJob(ctx context.Context, id int64, status models.JobStatus, errMsg, remark string) (bool, error)
}

// ObjectStore is the presign/multipart surface, satisfied by
// *storage.Client.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	InitiateMultipart(ctx context.Context, key string) (string, error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error
}

// Queue is the FIFO send surface, satisfied by *queue.Client.
type Queue interface {
	Send(ctx context.Context, queueURL string, payload any, groupID, dedupID string) error
}

// Service is the job orchestration service.
type Service struct {
	store        Store
	tx           TxRunner
	objects      ObjectStore
	queue        Queue
	zipQueueURL  string
	fileQueueURL string
	logger       *logging.Logger
}

// New creates the job service.
func New(cfg *config.Config, st Store, tx TxRunner, objects ObjectStore, q Queue) *Service {
	return &Service{
		store:        st,
		tx:           tx,
		objects:      objects,
		queue:        q,
		zipQueueURL:  cfg.Queue.ZipQueueURL,
		fileQueueURL: cfg.Queue.FileQueueURL,
		logger:       logging.NewLogger("jobs", false),
	}
}

// CreatedJob is the result of a job creation call.
type CreatedJob struct {
	JobID     int64
	UploadURL string // presigned PUT (single-part creation)
	UploadID  string // multipart upload id (multipart creation)
	Key       string
}

// CreateJobAndPresignedURL inserts a PENDING_UPLOAD job, derives its
// source object key from the fresh id, and mints a presigned PUT URL.
// A nil gxBucketID marks the job bulk.
func (s *Service) CreateJobAndPresignedURL(ctx context.Context, fileName string, gxBucketID *int64, skipGxProcess bool) (*CreatedJob, error) {
	job, err := s.createJob(ctx, fileName, gxBucketID, skipGxProcess)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignUpload(ctx, job.FileLocation)
	if err != nil {
		return nil, err
	}
	return &CreatedJob{JobID: job.ID, UploadURL: url, Key: job.FileLocation}, nil
}

// CreateJobAndInitiateMultipartUpload is CreateJobAndPresignedURL for
// uploads too large for one PUT: it opens a multipart upload instead.
func (s *Service) CreateJobAndInitiateMultipartUpload(ctx context.Context, fileName string, gxBucketID *int64, skipGxProcess bool) (*CreatedJob, error) {
	job, err := s.createJob(ctx, fileName, gxBucketID, skipGxProcess)
	if err != nil {
		return nil, err
	}
	uploadID, err := s.objects.InitiateMultipart(ctx, job.FileLocation)
	if err != nil {
		return nil, err
	}
	return &CreatedJob{JobID: job.ID, UploadID: uploadID, Key: job.FileLocation}, nil
}

func (s *Service) createJob(ctx context.Context, fileName string, gxBucketID *int64, skipGxProcess bool) (*models.ProcessingJob, error) {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(fileName, "\\", "/")))
	if base == "" || base == "." || base == ".." || base == "/" {
		return nil, fmt.Errorf("file name %q is blank: %w", fileName, models.ErrValidation)
	}

	job := &models.ProcessingJob{
		OriginalFilename: base,
		Status:           models.JobPendingUpload,
		GxBucketID:       gxBucketID,
		SkipGxProcess:    skipGxProcess,
	}
	// The key embeds the job id, so the row is created first with a
	// placeholder location and updated in the same transaction.
	err := s.tx.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateJob(ctx, job); err != nil {
			return err
		}
		job.FileLocation = storage.ConstructKey(gxBucketID, storage.KindSource, job.ID, base)
		return tx.UpdateJobLocation(ctx, job.ID, job.FileLocation)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("job", job.ID).Str("file", base).Bool("bulk", job.Bulk()).
		Msg("Job created")
	return job, nil
}

// PresignPart mints a presigned URL for one part of a job's multipart
// upload.
func (s *Service) PresignPart(ctx context.Context, jobID int64, uploadID string, partNumber int32) (string, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.objects.PresignPart(ctx, job.FileLocation, uploadID, partNumber)
}

// CompleteMultipartUpload finishes a job's multipart upload from the
// client-reported part list and records the upload as complete.
func (s *Service) CompleteMultipartUpload(ctx context.Context, jobID int64, uploadID string, parts []storage.CompletedPart) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.objects.CompleteMultipart(ctx, job.FileLocation, uploadID, parts); err != nil {
		return err
	}
	_, err = s.store.UpdateJobStatus(ctx, jobID, models.JobUploadComplete,
		[]models.JobStatus{models.JobPendingUpload})
	return err
}

// triggerableStatuses are the statuses TriggerProcessing accepts.
var triggerableStatuses = []models.JobStatus{models.JobPendingUpload, models.JobUploadComplete}

// TriggerProcessing routes an uploaded job into the pipeline: any .zip
// extension or bulk job goes to zip extraction, everything else becomes
// a single queued file. The child row, the QUEUED transition and the
// enqueue commit together; the send fires only after the commit.
func (s *Service) TriggerProcessing(ctx context.Context, jobID int64) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	triggerable := false
	for _, st := range triggerableStatuses {
		if job.Status == st {
			triggerable = true
		}
	}
	if !triggerable {
		return fmt.Errorf("job %d in status %s cannot be triggered: %w", jobID, job.Status, models.ErrConflict)
	}

	ext := validation.Extension(job.OriginalFilename)
	if job.Bulk() && ext != "zip" {
		reason := fmt.Sprintf("bulk job requires a zip archive, got %q", job.OriginalFilename)
		if _, ferr := s.store.FinishJob(ctx, jobID, models.JobFailed, reason, ""); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%s: %w", reason, models.ErrValidation)
	}

	if ext == "zip" {
		return s.triggerZip(ctx, job)
	}
	return s.triggerFile(ctx, job, ext)
}

func (s *Service) triggerZip(ctx context.Context, job *models.ProcessingJob) error {
	return s.tx.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		zip, err := tx.UpsertZipForJob(ctx, &models.ZipMaster{
			ProcessingJobID:  job.ID,
			GxBucketID:       job.GxBucketID,
			OriginalFilePath: job.FileLocation,
			OriginalFileName: job.OriginalFilename,
			Status:           models.ZipQueuedForExtraction,
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateJobStatus(ctx, job.ID, models.JobQueued, triggerableStatuses); err != nil {
			return err
		}
		tx.AfterCommit(func(ctx context.Context) {
			err := s.queue.Send(ctx, s.zipQueueURL, models.ZipMessage{ZipMasterID: zip.ID},
				models.ZipGroupID(job.ID), models.ZipDedupID(zip.ID))
			if err != nil {
				s.logger.Error().Err(err).Int64("job", job.ID).Int64("zipMaster", zip.ID).
					Msg("Failed to enqueue zip extraction")
			}
		})
		return nil
	})
}

func (s *Service) triggerFile(ctx context.Context, job *models.ProcessingJob, ext string) error {
	return s.tx.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		file := &models.FileMaster{
			ProcessingJobID: job.ID,
			GxBucketID:      *job.GxBucketID,
			FileLocation:    job.FileLocation,
			FileName:        job.OriginalFilename,
			Extension:       ext,
			SourceType:      models.SourceUploaded,
			Status:          models.FileQueued,
		}
		if err := tx.CreateFile(ctx, file); err != nil {
			return err
		}
		if _, err := tx.UpdateJobStatus(ctx, job.ID, models.JobQueued, triggerableStatuses); err != nil {
			return err
		}
		tx.AfterCommit(func(ctx context.Context) {
			err := s.queue.Send(ctx, s.fileQueueURL, models.FileMessage{FileMasterID: file.ID},
				models.FileGroupID(file.GxBucketID), models.FileMasterDedupID(file.ID))
			if err != nil {
				s.logger.Error().Err(err).Int64("job", job.ID).Int64("fileMaster", file.ID).
					Msg("Failed to enqueue file processing")
			}
		})
		return nil
	})
}

// PresignDownload resolves a file or gx master (gx takes priority when
// both are given) to its object key and mints a presigned GET URL.
func (s *Service) PresignDownload(ctx context.Context, fileMasterID, gxMasterID *int64) (string, error) {
	var key string
	switch {
	case gxMasterID != nil:
		gx, err := s.store.GetGx(ctx, *gxMasterID)
		if err != nil {
			return "", err
		}
		key = gx.FileLocation
	case fileMasterID != nil:
		file, err := s.store.GetFile(ctx, *fileMasterID)
		if err != nil {
			return "", err
		}
		key = file.FileLocation
	default:
		return "", fmt.Errorf("fileMasterId or gxMasterId is required: %w", models.ErrValidation)
	}
	if key == "" || key == models.NoLocation {
		return "", fmt.Errorf("no stored object for the requested entity: %w", models.ErrNotFound)
	}
	return s.objects.PresignDownload(ctx, key)
}
