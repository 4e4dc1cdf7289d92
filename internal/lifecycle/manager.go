// Package lifecycle owns job-level state: admin termination, child
// failure propagation, and the cron reconciliation that folds child
// outcomes into a terminal job status.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Store is the persistence surface the manager needs, satisfied by
// *store.Store.
type Store interface {
	GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error)
	GetZip(ctx context.Context, id int64) (*models.ZipMaster, error)
	GetFile(ctx context.Context, id int64) (*models.FileMaster, error)
	UpdateJobStatus(ctx context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error)
	FinishJob(ctx context.Context, id int64, status models.JobStatus, errMsg, remark string) (bool, error)
	FailZip(ctx context.Context, id int64, errMsg string) (bool, error)
	FailFile(ctx context.Context, id int64, errMsg string) (bool, error)
	FailGx(ctx context.Context, id int64, errMsg string) error
	TerminateActiveJobs(ctx context.Context) (int64, error)
	TerminateZipsForJobs(ctx context.Context, jobIDs []int64) (int64, error)
	TerminateFilesForJobs(ctx context.Context, jobIDs []int64) (int64, error)
	TerminateGxForJobs(ctx context.Context, jobIDs []int64) (int64, error)
}

// Queue is the purge surface, satisfied by *queue.Client.
type Queue interface {
	PurgeAll(ctx context.Context, queueURLs []string) error
}

// Manager performs job lifecycle transitions.
type Manager struct {
	store     Store
	queue     Queue
	queueURLs []string
	logger    *logging.Logger
}

// NewManager creates the lifecycle manager.
func NewManager(cfg *config.Config, st Store, q Queue) *Manager {
	return &Manager{
		store:     st,
		queue:     q,
		queueURLs: []string{cfg.Queue.ZipQueueURL, cfg.Queue.FileQueueURL},
		logger:    logging.NewLogger("lifecycle", false),
	}
}

// TerminateJob moves one job and its in-flight children to TERMINATED.
// A job outside the terminable set is left untouched and reported false.
func (m *Manager) TerminateJob(ctx context.Context, jobID int64) (bool, error) {
	won, err := m.store.UpdateJobStatus(ctx, jobID, models.JobTerminated, models.TerminableJobStatuses)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	ids := []int64{jobID}
	if _, err := m.store.TerminateZipsForJobs(ctx, ids); err != nil {
		return true, err
	}
	if _, err := m.store.TerminateFilesForJobs(ctx, ids); err != nil {
		return true, err
	}
	if _, err := m.store.TerminateGxForJobs(ctx, ids); err != nil {
		return true, err
	}
	m.logger.Info().Int64("job", jobID).Msg("Job terminated")
	return true, nil
}

// TerminateAllActiveJobs sweeps every terminable job and its in-flight
// children to TERMINATED with four bulk updates, then purges both
// queues. Returns the number of jobs terminated.
func (m *Manager) TerminateAllActiveJobs(ctx context.Context) (int64, error) {
	jobs, err := m.store.TerminateActiveJobs(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := m.store.TerminateZipsForJobs(ctx, nil); err != nil {
		return jobs, err
	}
	if _, err := m.store.TerminateFilesForJobs(ctx, nil); err != nil {
		return jobs, err
	}
	if _, err := m.store.TerminateGxForJobs(ctx, nil); err != nil {
		return jobs, err
	}
	if err := m.queue.PurgeAll(ctx, m.queueURLs); err != nil {
		return jobs, err
	}
	m.logger.Info().Int64("jobs", jobs).Msg("All active jobs terminated")
	return jobs, nil
}

// FailJobForZipExtraction marks the zip master EXTRACTION_FAILED with
// reason and moves its job to FAILED unless the job is already terminal.
func (m *Manager) FailJobForZipExtraction(ctx context.Context, zipID int64, reason string) error {
	if _, err := m.store.FailZip(ctx, zipID, reason); err != nil {
		return err
	}
	zip, err := m.store.GetZip(ctx, zipID)
	if err != nil {
		return err
	}
	return m.FailJob(ctx, zip.ProcessingJobID, reason)
}

// FailJobForFileProcessing marks the file FAILED with reason and moves
// its job to FAILED unless the job is already terminal.
func (m *Manager) FailJobForFileProcessing(ctx context.Context, fileID int64, reason string) error {
	if _, err := m.store.FailFile(ctx, fileID, reason); err != nil {
		return err
	}
	file, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	return m.FailJob(ctx, file.ProcessingJobID, reason)
}

// FailGxMasterUpload records an artifact upload failure on the gx row
// alone. The job is reconciled later by the scheduler.
func (m *Manager) FailGxMasterUpload(ctx context.Context, gxID int64, reason string) error {
	return m.store.FailGx(ctx, gxID, reason)
}

// CompleteJob moves a job to COMPLETED unless already terminal.
func (m *Manager) CompleteJob(ctx context.Context, jobID int64, remark string) error {
	won, err := m.store.FinishJob(ctx, jobID, models.JobCompleted, "", remark)
	if err != nil {
		return err
	}
	if won {
		m.logger.Info().Int64("job", jobID).Msg("Job completed")
	}
	return nil
}

// PartiallyCompleteJob moves a job to PARTIAL_SUCCESS with the outcome
// remark unless already terminal.
func (m *Manager) PartiallyCompleteJob(ctx context.Context, jobID int64, remark string) error {
	won, err := m.store.FinishJob(ctx, jobID, models.JobPartialSuccess, "", remark)
	if err != nil {
		return err
	}
	if won {
		m.logger.Info().Int64("job", jobID).Str("remark", remark).Msg("Job partially completed")
	}
	return nil
}

// FailJob moves a job to FAILED with reason unless already terminal.
func (m *Manager) FailJob(ctx context.Context, jobID int64, reason string) error {
	won, err := m.store.FinishJob(ctx, jobID, models.JobFailed, reason, "")
	if err != nil {
		return err
	}
	if won {
		m.logger.Warn().Int64("job", jobID).Str("reason", reason).Msg("Job failed")
	}
	return nil
}

// outcomeRemark renders the reconciliation summary, e.g.
// "3 succeeded, 1 failed, 2 ignored, 1 duplicates."
func outcomeRemark(succeeded, failed, ignored, duplicates int) string {
	remark := fmt.Sprintf("%d succeeded, %d failed", succeeded, failed)
	if ignored > 0 {
		remark += fmt.Sprintf(", %d ignored", ignored)
	}
	if duplicates > 0 {
		remark += fmt.Sprintf(", %d duplicates", duplicates)
	}
	return remark + "."
}
