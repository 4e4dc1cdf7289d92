package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ZipMessage is the payload of the zip extraction queue.
type ZipMessage struct {
	ZipMasterID int64 `json:"zipMasterId"`
}

// FileMessage is the payload of the file processing queue.
type FileMessage struct {
	FileMasterID int64 `json:"fileMasterId"`
}

// ZipGroupID returns the FIFO message group for a zip job. Extraction for
// a given job is serialized on this key.
func ZipGroupID(jobID int64) string {
	return fmt.Sprintf("zip-job-%d", jobID)
}

// ZipDedupID returns the stable deduplication id for the first enqueue of
// a zip master. Retries must mint a fresh id instead.
func ZipDedupID(zipMasterID int64) string {
	return fmt.Sprintf("zip-master-%d", zipMasterID)
}

// FileGroupID returns the FIFO message group for file work: the string
// form of the tenant bucket, so per-bucket ordering holds.
func FileGroupID(gxBucketID int64) string {
	return fmt.Sprintf("%d", gxBucketID)
}

// FileDedupID returns the deduplication id for enqueueing a file whose
// hash is known: the (bucket, hash) identity, so a redelivered
// extraction run cannot enqueue the same content twice.
func FileDedupID(gxBucketID int64, fileHash string) string {
	return fmt.Sprintf("file-%d-%s", gxBucketID, fileHash)
}

// FileMasterDedupID returns the per-row deduplication id used when the
// hash is not yet known (direct uploads at trigger time).
func FileMasterDedupID(fileMasterID int64) string {
	return fmt.Sprintf("file-master-%d", fileMasterID)
}

// RetryDedupID mints a fresh deduplication id for a user-driven retry so
// the FIFO dedup window cannot swallow it.
func RetryDedupID(fileMasterID int64) string {
	return fmt.Sprintf("file-master-%d-%s", fileMasterID, uuid.NewString())
}
