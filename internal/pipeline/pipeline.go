// Package pipeline consumes file processing messages: it locks the
// FileMaster, settles its hash and duplicate standing, runs the
// format handler, and maps the handler outcome onto final artifacts
// (GxMaster rows) or new child files.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/handlers"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/storage"
	"github.com/docforge/docforge/internal/uploader"
	"github.com/docforge/docforge/internal/validation"
)

// Store is the persistence surface the pipeline needs, satisfied by
// *store.Store.
type Store interface {
	GetFile(ctx context.Context, id int64) (*models.FileMaster, error)
	GetJob(ctx context.Context, id int64) (*models.ProcessingJob, error)
	AcquireFileLock(ctx context.Context, id int64) (bool, error)
	UpdateFileStatus(ctx context.Context, id int64, newStatus models.FileStatus, expected []models.FileStatus) (bool, error)
	SetFileHashAndSize(ctx context.Context, id int64, fileHash string, size int64) error
	FindWinner(ctx context.Context, gxBucketID int64, fileHash string) (*models.FileMaster, error)
	MarkFileDuplicate(ctx context.Context, id, winnerID int64) error
	IgnoreFile(ctx context.Context, id int64, reason string) error
	FailFile(ctx context.Context, id int64, errMsg string) (bool, error)
	CreateFile(ctx context.Context, f *models.FileMaster) error
	CreateGx(ctx context.Context, g *models.GxMaster) error
	MarkGxUploaded(ctx context.Context, id int64) error
	FailGx(ctx context.Context, id int64, errMsg string) error
}

// ObjectStore is the object storage surface, satisfied by
// *storage.Client.
type ObjectStore interface {
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// Queue is the FIFO send surface, satisfied by *queue.Client.
type Queue interface {
	Send(ctx context.Context, queueURL string, payload any, groupID, dedupID string) error
}

// Uploader schedules background artifact uploads, satisfied by
// *uploader.Uploader.
type Uploader interface {
	Schedule(ctx context.Context, entityID int64, key string, content []byte, action uploader.Action)
}

// JobFailer propagates an unrecoverable file failure to the job,
// satisfied by *lifecycle.Manager.
type JobFailer interface {
	FailJobForFileProcessing(ctx context.Context, fileID int64, reason string) error
}

// Service is the file pipeline worker.
type Service struct {
	store        Store
	objects      ObjectStore
	queue        Queue
	uploads      Uploader
	jobs         JobFailer
	registry     *handlers.Registry
	validator    *validation.Validator
	fileQueueURL string
	tempDir      string
	logger       *logging.Logger
}

// New creates the pipeline service.
func New(cfg *config.Config, st Store, objects ObjectStore, q Queue, uploads Uploader, jobs JobFailer, registry *handlers.Registry) *Service {
	return &Service{
		store:        st,
		objects:      objects,
		queue:        q,
		uploads:      uploads,
		jobs:         jobs,
		registry:     registry,
		validator:    validation.New(cfg.SupportedExtensionSet()),
		fileQueueURL: cfg.Queue.FileQueueURL,
		tempDir:      cfg.Zip.TempDir,
		logger:       logging.NewLogger("pipeline", false),
	}
}

// HandleMessage is the queue handler for file processing messages.
func (s *Service) HandleMessage(ctx context.Context, body string) error {
	var msg models.FileMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("malformed file message %q: %w", body, err)
	}

	file, err := s.store.GetFile(ctx, msg.FileMasterID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn().Int64("fileMaster", msg.FileMasterID).Msg("File master vanished, dropping message")
			return nil
		}
		return err
	}

	won, err := s.store.AcquireFileLock(ctx, file.ID)
	if err != nil {
		return err
	}
	if !won {
		s.logger.Info().Int64("fileMaster", file.ID).Str("status", string(file.Status)).
			Msg("File already claimed, dropping message")
		return nil
	}

	job, err := s.store.GetJob(ctx, file.ProcessingJobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobTerminated {
		_, err := s.store.UpdateFileStatus(ctx, file.ID, models.FileTerminated,
			[]models.FileStatus{models.FileInProgress})
		return err
	}

	if err := s.process(ctx, job, file); err != nil {
		if models.IsTransient(err) {
			// Give the redelivery a fresh claim on the row.
			if _, rerr := s.store.UpdateFileStatus(ctx, file.ID, models.FileQueued,
				[]models.FileStatus{models.FileInProgress}); rerr != nil {
				s.logger.Error().Err(rerr).Int64("fileMaster", file.ID).Msg("Failed to requeue file after transient error")
			}
			return err
		}
		s.logger.Error().Err(err).Int64("fileMaster", file.ID).Int64("job", job.ID).
			Msg("File processing failed")
		return s.jobs.FailJobForFileProcessing(ctx, file.ID, err.Error())
	}
	return nil
}

// process runs one locked file to a terminal or settled state.
func (s *Service) process(ctx context.Context, job *models.ProcessingJob, file *models.FileMaster) error {
	tempPath, size, hash, err := s.download(ctx, file.FileLocation)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	if file.FileHash == nil {
		// Direct-upload path: the hash and true size are first known now.
		settled, err := s.settleHash(ctx, job, file, hash, size)
		if err != nil || settled {
			return err
		}
		file.FileHash = &hash
		file.FileSize = size
	}

	handler := s.registry.Lookup(file.Extension)
	if handler == nil {
		return s.store.IgnoreFile(ctx, file.ID, fmt.Sprintf("no handler registered for extension %q", file.Extension))
	}

	f, err := os.Open(tempPath)
	if err != nil {
		return models.Transientf("open spool for file %d failed: %v", file.ID, err)
	}
	items, err := handler.Handle(ctx, f, file)
	f.Close()
	if err != nil {
		return err
	}

	if err := s.applyOutcome(ctx, job, file, items); err != nil {
		return err
	}

	// Late state changes (termination, duplicate settlement) win.
	_, err = s.store.UpdateFileStatus(ctx, file.ID, models.FileCompleted,
		[]models.FileStatus{models.FileInProgress})
	return err
}

// download spools the object at key to a temp file, digesting inline.
func (s *Service) download(ctx context.Context, key string) (tempPath string, size int64, hash string, err error) {
	stream, err := s.objects.DownloadStream(ctx, key)
	if err != nil {
		return "", 0, "", err
	}
	defer stream.Close()

	tmp, err := os.CreateTemp(s.tempDir, "docforge-file-*")
	if err != nil {
		return "", 0, "", models.Transientf("temp spool failed: %v", err)
	}
	hasher := sha256.New()
	size, err = io.Copy(tmp, io.TeeReader(stream, hasher))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, "", models.Transientf("spooling %s failed: %v", key, err)
	}
	return tmp.Name(), size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// settleHash runs the direct-upload validation + dedup flow. Returns
// settled=true when the file reached a terminal state (ignored or
// duplicate) and processing must stop.
func (s *Service) settleHash(ctx context.Context, job *models.ProcessingJob, file *models.FileMaster, hash string, size int64) (bool, error) {
	if verr := s.validator.ValidateFully(file.FileName, size); verr != nil {
		return true, s.store.IgnoreFile(ctx, file.ID, verr.Error())
	}

	winner, err := s.store.FindWinner(ctx, file.GxBucketID, hash)
	if err != nil {
		return false, err
	}
	if winner != nil && winner.ID != file.ID {
		return true, s.store.MarkFileDuplicate(ctx, file.ID, winner.ID)
	}

	err = s.store.SetFileHashAndSize(ctx, file.ID, hash, size)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrDuplicate) {
		return false, err
	}
	// Lost the index race; the winner must exist now.
	winner, werr := s.store.FindWinner(ctx, file.GxBucketID, hash)
	if werr != nil {
		return false, werr
	}
	if winner == nil || winner.ID == file.ID {
		return false, models.Transientf("could not settle dedup for file %d", file.ID)
	}
	return true, s.store.MarkFileDuplicate(ctx, file.ID, winner.ID)
}

// applyOutcome maps the handler's items onto artifacts or children.
func (s *Service) applyOutcome(ctx context.Context, job *models.ProcessingJob, file *models.FileMaster, items []handlers.Item) error {
	switch {
	case len(items) == 0:
		return s.finalizeSource(ctx, job, file)
	case len(items) == 1 && items[0].Filename == file.FileName:
		return s.createArtifact(ctx, job, file, items[0])
	case file.Extension == "pdf":
		for _, item := range items {
			if err := s.createArtifact(ctx, job, file, item); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, item := range items {
			if err := s.createChild(ctx, job, file, item); err != nil {
				return err
			}
		}
		return nil
	}
}

// finalizeSource promotes the already-uploaded source object to the
// final artifact via server-side copy. No new upload happens, so the Gx
// row starts ready for submission.
func (s *Service) finalizeSource(ctx context.Context, job *models.ProcessingJob, file *models.FileMaster) error {
	finalKey := storage.ConstructBucketKey(file.GxBucketID, storage.KindFiles, job.ID, file.FileName)
	if finalKey != file.FileLocation {
		if err := s.objects.Copy(ctx, file.FileLocation, finalKey); err != nil {
			return err
		}
	}
	return s.store.CreateGx(ctx, &models.GxMaster{
		SourceFileID:      file.ID,
		GxBucketID:        file.GxBucketID,
		FileLocation:      finalKey,
		ProcessedFileName: file.FileName,
		FileSize:          file.FileSize,
		Extension:         file.Extension,
		Status:            models.GxQueuedForUpload,
	})
}

// createArtifact records one final artifact and schedules its bytes for
// background upload. The upload outcome moves the Gx row alone.
func (s *Service) createArtifact(ctx context.Context, job *models.ProcessingJob, file *models.FileMaster, item handlers.Item) error {
	key := storage.ConstructBucketKey(file.GxBucketID, storage.KindFiles, job.ID, item.Filename)
	gx := &models.GxMaster{
		SourceFileID:      file.ID,
		GxBucketID:        file.GxBucketID,
		FileLocation:      key,
		ProcessedFileName: item.Filename,
		FileSize:          int64(len(item.Content)),
		Extension:         validation.Extension(item.Filename),
		Status:            models.GxReading,
	}
	if err := s.store.CreateGx(ctx, gx); err != nil {
		return err
	}
	s.uploads.Schedule(ctx, gx.ID, key, item.Content, &gxUploadAction{store: s.store, logger: s.logger})
	return nil
}

// createChild turns one handler item into a new FileMaster that re-enters
// the pipeline, running the same validation and dedup as zip ingestion.
func (s *Service) createChild(ctx context.Context, job *models.ProcessingJob, parent *models.FileMaster, item handlers.Item) error {
	hash := contentHash(item.Content)
	child := &models.FileMaster{
		ProcessingJobID:     job.ID,
		ZipMasterID:         parent.ZipMasterID,
		GxBucketID:          parent.GxBucketID,
		FileName:            item.Filename,
		FileSize:            int64(len(item.Content)),
		Extension:           validation.Extension(item.Filename),
		FileHash:            &hash,
		OriginalContentHash: &hash,
		SourceType:          childSourceType(parent.FileName, item.Filename),
	}

	if verr := s.validator.ValidateFully(item.Filename, child.FileSize); verr != nil {
		child.Status = models.FileIgnored
		child.FileLocation = models.NoLocation
		child.ErrorMessage = verr.Error()
		return s.store.CreateFile(ctx, child)
	}

	winner, err := s.store.FindWinner(ctx, parent.GxBucketID, hash)
	if err != nil {
		return err
	}
	if winner == nil {
		child.Status = models.FileQueued
		child.FileLocation = storage.ConstructBucketKey(parent.GxBucketID, storage.KindFiles, job.ID, item.Filename)
		err = s.store.CreateFile(ctx, child)
		if err == nil {
			s.uploads.Schedule(ctx, child.ID, child.FileLocation, item.Content, &fileUploadAction{
				store:    s.store,
				queue:    s.queue,
				queueURL: s.fileQueueURL,
				groupID:  models.FileGroupID(parent.GxBucketID),
				dedupID:  models.FileDedupID(parent.GxBucketID, hash),
				logger:   s.logger,
			})
			return nil
		}
		if !errors.Is(err, models.ErrDuplicate) {
			return err
		}
		winner, err = s.store.FindWinner(ctx, parent.GxBucketID, hash)
		if err != nil {
			return err
		}
		if winner == nil {
			return models.Transientf("could not settle dedup for hash %s in bucket %d", hash, parent.GxBucketID)
		}
	}

	child.Status = models.FileDuplicate
	child.FileLocation = models.NoLocation
	child.DuplicateOfFileID = &winner.ID
	return s.store.CreateFile(ctx, child)
}

// childSourceType distinguishes a format conversion (same stem, new
// extension) from content pulled out of a container.
func childSourceType(parentName, childName string) models.SourceType {
	if stem(parentName) == stem(childName) {
		return models.SourceTransformed
	}
	return models.SourceExtracted
}

func stem(name string) string {
	return strings.TrimSuffix(path.Base(name), path.Ext(name))
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// gxUploadAction moves a Gx row after its artifact upload settles.
type gxUploadAction struct {
	store  Store
	logger *logging.Logger
}

func (a *gxUploadAction) OnSuccess(ctx context.Context, gxID int64) {
	if err := a.store.MarkGxUploaded(ctx, gxID); err != nil {
		a.logger.Error().Err(err).Int64("gxMaster", gxID).Msg("Failed to mark gx uploaded")
	}
}

func (a *gxUploadAction) OnFailure(ctx context.Context, gxID int64, errMsg string) {
	if err := a.store.FailGx(ctx, gxID, errMsg); err != nil {
		a.logger.Error().Err(err).Int64("gxMaster", gxID).Msg("Failed to record gx upload failure")
	}
}

// fileUploadAction enqueues a child file once its artifact is in place,
// or fails the row when the upload cannot complete.
type fileUploadAction struct {
	store    Store
	queue    Queue
	queueURL string
	groupID  string
	dedupID  string
	logger   *logging.Logger
}

func (a *fileUploadAction) OnSuccess(ctx context.Context, fileID int64) {
	err := a.queue.Send(ctx, a.queueURL, models.FileMessage{FileMasterID: fileID}, a.groupID, a.dedupID)
	if err != nil {
		a.logger.Error().Err(err).Int64("fileMaster", fileID).Msg("Failed to enqueue child file")
		if _, ferr := a.store.FailFile(ctx, fileID, err.Error()); ferr != nil {
			a.logger.Error().Err(ferr).Int64("fileMaster", fileID).Msg("Failed to record enqueue failure")
		}
	}
}

func (a *fileUploadAction) OnFailure(ctx context.Context, fileID int64, errMsg string) {
	if _, err := a.store.FailFile(ctx, fileID, errMsg); err != nil {
		a.logger.Error().Err(err).Int64("fileMaster", fileID).Msg("Failed to record upload failure")
	}
}
