// Package ingest consumes zip extraction messages: it streams the
// uploaded archive out of object storage, walks its entries, and turns
// each admissible entry into a queued FileMaster with its artifact
// already in place.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/storage"
	"github.com/docforge/docforge/internal/validation"
	"github.com/docforge/docforge/internal/zipstream"
)

// errBulkLayout marks a bulk archive whose entries do not follow the
// one-folder-per-bucket layout. Terminal for the whole archive.
var errBulkLayout = errors.New("Bulk ZIP has an invalid structure")

// Store is the persistence surface the extractor needs, satisfied by
// *store.Store.
type Store interface {
	GetZip(ctx context.Context, id int64) (*models.ZipMaster, error)
	GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error)
	UpdateZipStatus(ctx context.Context, id int64, newStatus models.ZipStatus, expected []models.ZipStatus) (bool, error)
	UpdateJobStatus(ctx context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error)
	UpdateJobStage(ctx context.Context, id int64, stage string) error
	CreateFile(ctx context.Context, f *models.FileMaster) error
	FindWinner(ctx context.Context, gxBucketID int64, fileHash string) (*models.FileMaster, error)
	FailFile(ctx context.Context, id int64, errMsg string) (bool, error)
}

// ObjectStore is the object storage surface, satisfied by
// *storage.Client.
type ObjectStore interface {
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, key, path string) error
}

// Queue is the FIFO send surface, satisfied by *queue.Client.
type Queue interface {
	Send(ctx context.Context, queueURL string, payload any, groupID, dedupID string) error
}

// BucketResolver creates (or fetches) tenant buckets by name, satisfied
// by *gx.Client.
type BucketResolver interface {
	CreateBucket(ctx context.Context, name string) (int64, error)
}

// JobFailer moves a zip master and its job to their failed states,
// satisfied by *lifecycle.Manager.
type JobFailer interface {
	FailJobForZipExtraction(ctx context.Context, zipID int64, reason string) error
}

// Service is the zip extraction worker.
type Service struct {
	store        Store
	objects      ObjectStore
	queue        Queue
	buckets      BucketResolver
	jobs         JobFailer
	validator    *validation.Validator
	processor    *zipstream.Processor
	fileQueueURL string
	concurrency  int
	logger       *logging.Logger
}

// New creates the extraction service.
func New(cfg *config.Config, st Store, objects ObjectStore, q Queue, buckets BucketResolver, jobs JobFailer) *Service {
	return &Service{
		store:        st,
		objects:      objects,
		queue:        q,
		buckets:      buckets,
		jobs:         jobs,
		validator:    validation.New(cfg.SupportedExtensionSet()),
		processor:    zipstream.New(cfg.Zip.TempDir),
		fileQueueURL: cfg.Queue.FileQueueURL,
		concurrency:  cfg.Zip.ConcurrencyLimit,
		logger:       logging.NewLogger("ingest", false),
	}
}

// HandleMessage is the queue handler for zip extraction messages.
// Returning a transient error leaves the message for redelivery; any
// other outcome acknowledges it.
func (s *Service) HandleMessage(ctx context.Context, body string) error {
	var msg models.ZipMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("malformed zip message %q: %w", body, err)
	}

	zip, err := s.store.GetZip(ctx, msg.ZipMasterID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn().Int64("zipMaster", msg.ZipMasterID).Msg("Zip master vanished, dropping message")
			return nil
		}
		return err
	}
	job, err := s.store.GetJob(ctx, zip.ProcessingJobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		s.logger.Info().Int64("job", job.ID).Str("status", string(job.Status)).
			Msg("Job already terminal, dropping extraction message")
		return nil
	}

	// The extraction lock: exactly one delivery wins this transition.
	won, err := s.store.UpdateZipStatus(ctx, zip.ID, models.ZipExtractionInProgress,
		[]models.ZipStatus{models.ZipQueuedForExtraction})
	if err != nil {
		return err
	}
	if !won {
		s.logger.Info().Int64("zipMaster", zip.ID).Msg("Extraction already claimed, dropping message")
		return nil
	}
	if _, err := s.store.UpdateJobStatus(ctx, job.ID, models.JobProcessing,
		[]models.JobStatus{models.JobQueued}); err != nil {
		return err
	}

	counts, err := s.extract(ctx, job, zip)
	if err != nil {
		if models.IsTransient(err) {
			// Give the redelivery a fresh claim on the row.
			if _, rerr := s.store.UpdateZipStatus(ctx, zip.ID, models.ZipQueuedForExtraction,
				[]models.ZipStatus{models.ZipExtractionInProgress}); rerr != nil {
				s.logger.Error().Err(rerr).Int64("zipMaster", zip.ID).Msg("Failed to requeue zip after transient error")
			}
			return err
		}
		return s.failExtraction(ctx, job, zip, err)
	}

	if _, err := s.store.UpdateZipStatus(ctx, zip.ID, models.ZipExtractionSuccess,
		[]models.ZipStatus{models.ZipExtractionInProgress}); err != nil {
		return err
	}
	stage := fmt.Sprintf("Extracted %d files (%d ignored, %d duplicates, %d failed)",
		counts.queued, counts.ignored, counts.duplicates, counts.failed)
	if err := s.store.UpdateJobStage(ctx, job.ID, stage); err != nil {
		s.logger.Error().Err(err).Int64("job", job.ID).Msg("Failed to record extraction stage")
	}
	s.logger.Info().Int64("job", job.ID).Int64("zipMaster", zip.ID).Str("result", stage).
		Msg("Extraction finished")
	return nil
}

// failExtraction records a permanent extraction failure on the zip
// master and the job, then acknowledges the message.
func (s *Service) failExtraction(ctx context.Context, job *models.ProcessingJob, zip *models.ZipMaster, cause error) error {
	s.logger.Error().Err(cause).Int64("job", job.ID).Int64("zipMaster", zip.ID).Msg("Extraction failed")
	return s.jobs.FailJobForZipExtraction(ctx, zip.ID, cause.Error())
}

// entryCounts tallies the outcome of one extraction run.
type entryCounts struct {
	mu         sync.Mutex
	queued     int
	ignored    int
	duplicates int
	failed     int
}

func (c *entryCounts) add(field *int) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// extract streams the archive and fans entries out to a bounded worker
// group. Entry-level failures are isolated; only stream, structure and
// bulk-layout errors abort the run.
func (s *Service) extract(ctx context.Context, job *models.ProcessingJob, zip *models.ZipMaster) (*entryCounts, error) {
	stream, err := s.objects.DownloadStream(ctx, zip.OriginalFilePath)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	buckets := newBucketCache(s.buckets)
	counts := &entryCounts{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	walkErr := s.processor.Process(gctx, stream, func(ctx context.Context, e zipstream.Entry) error {
		if job.Bulk() && bulkFolder(e.Path) == "" {
			os.Remove(e.TempFile)
			return errBulkLayout
		}
		g.Go(func() error {
			defer os.Remove(e.TempFile)
			if err := s.handleEntry(gctx, job, zip, buckets, counts, e); err != nil {
				s.logger.Error().Err(err).Int64("job", job.ID).Str("path", e.Path).
					Msg("Entry processing failed")
				counts.add(&counts.failed)
			}
			return nil
		})
		return nil
	})
	groupErr := g.Wait()

	if walkErr != nil {
		return nil, walkErr
	}
	if groupErr != nil {
		return nil, groupErr
	}
	return counts, nil
}

// handleEntry runs one extracted entry through validation, dedup,
// artifact upload and enqueue.
func (s *Service) handleEntry(ctx context.Context, job *models.ProcessingJob, zip *models.ZipMaster,
	buckets *bucketCache, counts *entryCounts, e zipstream.Entry) error {

	bucketID, err := s.resolveBucket(ctx, job, buckets, e.Path)
	if err != nil {
		return err
	}

	base := e.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	hash := e.SHA256
	file := &models.FileMaster{
		ProcessingJobID:     job.ID,
		ZipMasterID:         &zip.ID,
		GxBucketID:          bucketID,
		FileName:            base,
		FileSize:            e.Size,
		Extension:           validation.Extension(base),
		FileHash:            &hash,
		OriginalContentHash: &hash,
		SourceType:          models.SourceExtracted,
	}

	if verr := s.validator.ValidateFully(base, e.Size); verr != nil {
		file.Status = models.FileIgnored
		file.FileLocation = models.NoLocation
		file.ErrorMessage = verr.Error()
		if err := s.store.CreateFile(ctx, file); err != nil {
			return err
		}
		counts.add(&counts.ignored)
		return nil
	}

	file.Status = models.FileQueued
	file.FileLocation = storage.ConstructBucketKey(bucketID, storage.KindFiles, job.ID, base)

	created, winner, err := s.createWithDedup(ctx, file, bucketID, hash)
	if err != nil {
		return err
	}
	if !created {
		file.Status = models.FileDuplicate
		file.FileLocation = models.NoLocation
		file.DuplicateOfFileID = &winner.ID
		if err := s.store.CreateFile(ctx, file); err != nil {
			return err
		}
		counts.add(&counts.duplicates)
		return nil
	}

	if err := s.objects.UploadFile(ctx, file.FileLocation, e.TempFile); err != nil {
		if _, ferr := s.store.FailFile(ctx, file.ID, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	err = s.queue.Send(ctx, s.fileQueueURL, models.FileMessage{FileMasterID: file.ID},
		models.FileGroupID(bucketID), models.FileDedupID(bucketID, hash))
	if err != nil {
		if _, ferr := s.store.FailFile(ctx, file.ID, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	counts.add(&counts.queued)
	return nil
}

// createWithDedup claims the (bucket, hash) slot. Returns created=true
// when this row won the slot, or the winning row otherwise. The
// pre-check keeps the common duplicate path off the unique index; the
// violation handler recovers the insert race.
func (s *Service) createWithDedup(ctx context.Context, file *models.FileMaster, bucketID int64, hash string) (bool, *models.FileMaster, error) {
	for attempt := 0; attempt < 3; attempt++ {
		winner, err := s.store.FindWinner(ctx, bucketID, hash)
		if err != nil {
			return false, nil, err
		}
		if winner != nil {
			return false, winner, nil
		}

		err = s.store.CreateFile(ctx, file)
		if err == nil {
			return true, nil, nil
		}
		if !errors.Is(err, models.ErrDuplicate) {
			return false, nil, err
		}
		// Lost the insert race; loop to find the row that won.
	}
	return false, nil, models.Transientf("could not settle dedup for hash %s in bucket %d", hash, bucketID)
}

// resolveBucket returns the tenant bucket for one entry: the job bucket
// for single-bucket jobs, or the bucket named by the entry's top-level
// folder for bulk jobs.
func (s *Service) resolveBucket(ctx context.Context, job *models.ProcessingJob, buckets *bucketCache, path string) (int64, error) {
	if !job.Bulk() {
		return *job.GxBucketID, nil
	}
	folder := bulkFolder(path)
	if folder == "" {
		return 0, errBulkLayout
	}
	return buckets.resolve(ctx, folder)
}

// bulkFolder returns the top-level folder of an archive path, or ""
// when the entry sits at the archive root.
func bulkFolder(path string) string {
	i := strings.IndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return strings.TrimSpace(path[:i])
}

// bucketCache memoizes bucket creation per extraction run so a folder
// with a thousand files costs one API call.
type bucketCache struct {
	mu       sync.Mutex
	resolver BucketResolver
	ids      map[string]int64
}

func newBucketCache(resolver BucketResolver) *bucketCache {
	return &bucketCache{resolver: resolver, ids: make(map[string]int64)}
}

func (c *bucketCache) resolve(ctx context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[name]; ok {
		return id, nil
	}
	id, err := c.resolver.CreateBucket(ctx, name)
	if err != nil {
		return 0, err
	}
	c.ids[name] = id
	return id, nil
}
