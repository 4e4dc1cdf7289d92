// Package uploader performs non-blocking artifact uploads. A scheduled
// upload spools its bytes to a temp file, streams it to object storage,
// and then runs a success/failure action in its own transaction. Callers
// schedule only after the row the upload belongs to is committed.
package uploader

import (
	"context"
	"os"
	"sync"

	"github.com/docforge/docforge/internal/logging"
)

// Action receives the outcome of an async upload. Implementations update
// the one child entity the upload belongs to; they never mutate the job.
type Action interface {
	OnSuccess(ctx context.Context, entityID int64)
	OnFailure(ctx context.Context, entityID int64, errMsg string)
}

// Storage is the slice of the object store the uploader needs.
type Storage interface {
	UploadFile(ctx context.Context, key, path string) error
}

// Uploader schedules artifact uploads.
type Uploader struct {
	storage Storage
	tempDir string
	logger  *logging.Logger
	wg      sync.WaitGroup
}

// New creates an Uploader spooling through tempDir.
func New(storage Storage, tempDir string) *Uploader {
	return &Uploader{
		storage: storage,
		tempDir: tempDir,
		logger:  logging.NewLogger("uploader", false),
	}
}

// Schedule starts a background upload of content to key and invokes
// action with the outcome. Returns immediately.
func (u *Uploader) Schedule(ctx context.Context, entityID int64, key string, content []byte, action Action) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.upload(ctx, entityID, key, content, action)
	}()
}

func (u *Uploader) upload(ctx context.Context, entityID int64, key string, content []byte, action Action) {
	tmp, err := os.CreateTemp(u.tempDir, "docforge-artifact-*")
	if err != nil {
		u.logger.Error().Err(err).Int64("entity", entityID).Msg("Temp spool failed")
		action.OnFailure(ctx, entityID, err.Error())
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		u.logger.Error().Err(err).Int64("entity", entityID).Msg("Spool write failed")
		action.OnFailure(ctx, entityID, err.Error())
		return
	}

	if err := u.storage.UploadFile(ctx, key, tmp.Name()); err != nil {
		u.logger.Error().Err(err).Str("key", key).Int64("entity", entityID).Msg("Artifact upload failed")
		action.OnFailure(ctx, entityID, err.Error())
		return
	}

	u.logger.Debug().Str("key", key).Int64("entity", entityID).Msg("Artifact uploaded")
	action.OnSuccess(ctx, entityID)
}

// Wait blocks until all scheduled uploads finish. Used on shutdown and
// in tests.
func (u *Uploader) Wait() {
	u.wg.Wait()
}
