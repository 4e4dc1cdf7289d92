package gx

import (
	"context"
	"fmt"
	"time"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Store is the persistence surface of the GX workers, satisfied by
// *store.Store.
type Store interface {
	ListGxByStatus(ctx context.Context, statuses []models.GxStatus) ([]*models.GxMaster, error)
	GetGx(ctx context.Context, id int64) (*models.GxMaster, error)
	GetFile(ctx context.Context, id int64) (*models.FileMaster, error)
	GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error)
	SetGxStatusMessage(ctx context.Context, id int64, status models.GxStatus, message string) error
	SetGxProcessID(ctx context.Context, id int64, processID string, status models.GxStatus) error
	FailGx(ctx context.Context, id int64, errMsg string) error
	FailStalePendingJobs(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	RequeueFile(ctx context.Context, id int64) (bool, error)
	RequeueGx(ctx context.Context, id int64) (bool, error)
}

// API is the slice of the GX client the workers need, satisfied by
// *Client.
type API interface {
	SubmitIngest(ctx context.Context, req IngestRequest) (string, error)
	IngestStatus(ctx context.Context, processID string) (*IngestStatusReport, error)
}

// Queue is the FIFO send surface, satisfied by *queue.Client.
type Queue interface {
	Send(ctx context.Context, queueURL string, payload any, groupID, dedupID string) error
}

// staleJobReason is the fixed error recorded on swept PENDING_UPLOAD jobs.
const staleJobReason = "Upload was not completed in time"

// Worker runs the GX reconciliation loops: artifact submission, status
// polling and the stale-upload sweep.
type Worker struct {
	store        Store
	api          API
	queue        Queue
	fileQueueURL string
	staleAfter   time.Duration
	logger       *logging.Logger
}

// NewWorker creates the GX worker set.
func NewWorker(cfg *config.Config, st Store, api API, q Queue) *Worker {
	return &Worker{
		store:        st,
		api:          api,
		queue:        q,
		fileQueueURL: cfg.Queue.FileQueueURL,
		staleAfter:   time.Duration(cfg.Scheduler.StaleJobHours) * time.Hour,
		logger:       logging.NewLogger("gx-worker", false),
	}
}

// SubmitPending hands every uploaded artifact to GX. Jobs flagged
// skipGxProcess record the nil process id and settle as SKIPPED without
// a network call. Per-record errors mark that row ERROR and the batch
// continues.
func (w *Worker) SubmitPending(ctx context.Context) error {
	pending, err := w.store.ListGxByStatus(ctx, []models.GxStatus{models.GxQueuedForUpload})
	if err != nil {
		return err
	}
	for _, g := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.submitOne(ctx, g); err != nil {
			w.logger.Error().Err(err).Int64("gxMaster", g.ID).Msg("Submission failed")
			if ferr := w.store.FailGx(ctx, g.ID, err.Error()); ferr != nil {
				w.logger.Error().Err(ferr).Int64("gxMaster", g.ID).Msg("Failed to record submission failure")
			}
		}
	}
	return nil
}

func (w *Worker) submitOne(ctx context.Context, g *models.GxMaster) error {
	file, err := w.store.GetFile(ctx, g.SourceFileID)
	if err != nil {
		return err
	}
	job, err := w.store.GetJob(ctx, file.ProcessingJobID)
	if err != nil {
		return err
	}
	if job.SkipGxProcess {
		return w.store.SetGxProcessID(ctx, g.ID, models.NilUUID, models.GxSkipped)
	}

	processID, err := w.api.SubmitIngest(ctx, IngestRequest{
		BucketID:     g.GxBucketID,
		FileLocation: g.FileLocation,
		FileName:     g.ProcessedFileName,
	})
	if err != nil {
		return err
	}
	return w.store.SetGxProcessID(ctx, g.ID, processID, models.GxQueued)
}

// polledStatuses are the in-flight downstream states the poller tracks.
var polledStatuses = []models.GxStatus{models.GxQueued, models.GxProcessing}

// PollStatuses refreshes every in-flight Gx row from the GX status API.
// Per-record errors mark that row ERROR and the batch continues.
func (w *Worker) PollStatuses(ctx context.Context) error {
	inflight, err := w.store.ListGxByStatus(ctx, polledStatuses)
	if err != nil {
		return err
	}
	for _, g := range inflight {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.pollOne(ctx, g); err != nil {
			w.logger.Error().Err(err).Int64("gxMaster", g.ID).Str("process", g.GxProcessID).
				Msg("Status poll failed")
			if ferr := w.store.FailGx(ctx, g.ID, err.Error()); ferr != nil {
				w.logger.Error().Err(ferr).Int64("gxMaster", g.ID).Msg("Failed to record poll failure")
			}
		}
	}
	return nil
}

func (w *Worker) pollOne(ctx context.Context, g *models.GxMaster) error {
	report, err := w.api.IngestStatus(ctx, g.GxProcessID)
	if err != nil {
		return err
	}
	doc, found := report.FirstDocument()
	if !found {
		// Nothing reported yet; poll again next cycle.
		return nil
	}
	status, ok := TranslateStatus(doc.Status)
	if !ok {
		w.logger.Warn().Int64("gxMaster", g.ID).Str("status", doc.Status).
			Msg("Unknown GX status, leaving row untouched")
		return nil
	}
	return w.store.SetGxStatusMessage(ctx, g.ID, status, doc.StatusMessage)
}

// SweepStaleJobs fails jobs stuck in PENDING_UPLOAD beyond the
// configured threshold.
func (w *Worker) SweepStaleJobs(ctx context.Context) error {
	cutoff := time.Now().Add(-w.staleAfter)
	swept, err := w.store.FailStalePendingJobs(ctx, cutoff, staleJobReason)
	if err != nil {
		return err
	}
	if swept > 0 {
		w.logger.Info().Int64("jobs", swept).Msg("Stale pending jobs failed")
	}
	return nil
}

// RetryFile re-queues one FAILED file and re-enqueues it with a fresh
// deduplication id. The job status is never touched.
func (w *Worker) RetryFile(ctx context.Context, fileID int64) error {
	file, err := w.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	job, err := w.store.GetJob(ctx, file.ProcessingJobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, models.ErrConflict)
	}
	ok, err := w.store.RequeueFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("file %d is not FAILED: %w", fileID, models.ErrConflict)
	}
	return w.queue.Send(ctx, w.fileQueueURL, models.FileMessage{FileMasterID: fileID},
		models.FileGroupID(file.GxBucketID), models.RetryDedupID(fileID))
}

// RetryGx resets one ERROR gx row to QUEUED_FOR_UPLOAD; the submitter
// picks it up on its next cycle. The job status is never touched.
func (w *Worker) RetryGx(ctx context.Context, gxID int64) error {
	g, err := w.store.GetGx(ctx, gxID)
	if err != nil {
		return err
	}
	file, err := w.store.GetFile(ctx, g.SourceFileID)
	if err != nil {
		return err
	}
	job, err := w.store.GetJob(ctx, file.ProcessingJobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, models.ErrConflict)
	}
	ok, err := w.store.RequeueGx(ctx, gxID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("gx master %d is not ERROR: %w", gxID, models.ErrConflict)
	}
	return nil
}

// Retry resolves a retry request naming a file or gx master (gx takes
// priority when both are given).
func (w *Worker) Retry(ctx context.Context, fileMasterID, gxMasterID *int64) error {
	switch {
	case gxMasterID != nil:
		return w.RetryGx(ctx, *gxMasterID)
	case fileMasterID != nil:
		return w.RetryFile(ctx, *fileMasterID)
	default:
		return fmt.Errorf("fileMasterId or gxMasterId is required: %w", models.ErrValidation)
	}
}
