package lifecycle

import (
	"context"

	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// ReconcileStore is the read surface of the reconciler, satisfied by
// *store.Store.
type ReconcileStore interface {
	ListJobsByStatus(ctx context.Context, statuses []models.JobStatus) ([]*models.ProcessingJob, error)
	ListZipsByJob(ctx context.Context, jobID int64) ([]*models.ZipMaster, error)
	ListFilesByJob(ctx context.Context, jobID int64) ([]*models.FileMaster, error)
	ListGxByJob(ctx context.Context, jobID int64) ([]*models.GxMaster, error)
}

// Reconciler folds child outcomes into terminal job statuses. It runs on
// a cron and is idempotent: terminal jobs are never revisited, and the
// guarded finish transitions never overwrite a prior terminal status.
type Reconciler struct {
	store   ReconcileStore
	manager *Manager
	logger  *logging.Logger
}

// NewReconciler creates the completion reconciler.
func NewReconciler(st ReconcileStore, manager *Manager) *Reconciler {
	return &Reconciler{
		store:   st,
		manager: manager,
		logger:  logging.NewLogger("reconciler", false),
	}
}

// activeJobStatuses are the statuses the reconciler examines.
var activeJobStatuses = []models.JobStatus{
	models.JobQueued, models.JobProcessing, models.JobUploadComplete,
}

// Run performs one reconciliation sweep. Per-job errors are logged and
// do not abort the sweep.
func (r *Reconciler) Run(ctx context.Context) error {
	jobs, err := r.store.ListJobsByStatus(ctx, activeJobStatuses)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reconcileJob(ctx, job); err != nil {
			r.logger.Error().Err(err).Int64("job", job.ID).Msg("Reconciliation failed")
		}
	}
	return nil
}

func (r *Reconciler) reconcileJob(ctx context.Context, job *models.ProcessingJob) error {
	zips, err := r.store.ListZipsByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	files, err := r.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	gxs, err := r.store.ListGxByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	// A failed extraction decides the job regardless of per-file outcomes.
	for _, z := range zips {
		if z.Status == models.ZipExtractionFailed {
			return r.manager.FailJob(ctx, job.ID, z.ErrorMessage)
		}
	}

	if workPending(zips, files, gxs) {
		return nil
	}
	if len(zips) == 0 && len(files) == 0 {
		// Children not created yet (trigger committed, consumer not run).
		return nil
	}

	succeeded, failed, ignored, duplicates, firstFailure := summarize(files, gxs)
	switch {
	case failed > 0 && succeeded > 0:
		return r.manager.PartiallyCompleteJob(ctx, job.ID,
			outcomeRemark(succeeded, failed, ignored, duplicates))
	case failed > 0:
		return r.manager.FailJob(ctx, job.ID, firstFailure)
	default:
		return r.manager.CompleteJob(ctx, job.ID,
			outcomeRemark(succeeded, failed, ignored, duplicates))
	}
}

// workPending reports whether any child is still moving. Gx rows count
// as in-flight from READING onward, wider than the submitter's own
// pending set, so a job never settles while an artifact upload or
// submission is mid-air.
func workPending(zips []*models.ZipMaster, files []*models.FileMaster, gxs []*models.GxMaster) bool {
	for _, z := range zips {
		if z.Status == models.ZipQueuedForExtraction || z.Status == models.ZipExtractionInProgress {
			return true
		}
	}
	for _, f := range files {
		if f.Status == models.FileQueued || f.Status == models.FileInProgress {
			return true
		}
	}
	for _, g := range gxs {
		switch g.Status {
		case models.GxQueuedForUpload, models.GxReading, models.GxQueued, models.GxProcessing:
			return true
		}
	}
	return false
}

// summarize counts per-file outcomes. A file counts as failed if its own
// status is FAILED or any of its gx rows is ERROR.
func summarize(files []*models.FileMaster, gxs []*models.GxMaster) (succeeded, failed, ignored, duplicates int, firstFailure string) {
	gxErrors := make(map[int64]string)
	for _, g := range gxs {
		if g.Status == models.GxError {
			if _, seen := gxErrors[g.SourceFileID]; !seen {
				gxErrors[g.SourceFileID] = g.ErrorMessage
			}
		}
	}

	for _, f := range files {
		gxErr, hasGxErr := gxErrors[f.ID]
		switch {
		case f.Status == models.FileFailed:
			failed++
			if firstFailure == "" {
				firstFailure = f.ErrorMessage
			}
		case hasGxErr:
			failed++
			if firstFailure == "" {
				firstFailure = gxErr
			}
		case f.Status == models.FileIgnored:
			ignored++
		case f.Status == models.FileDuplicate:
			duplicates++
		case f.Status == models.FileCompleted:
			succeeded++
		}
	}
	return succeeded, failed, ignored, duplicates, firstFailure
}
