package models

import "time"

// ZipStatus is the extraction status of a ZipMaster.
type ZipStatus string

const (
	ZipQueuedForExtraction  ZipStatus = "QUEUED_FOR_EXTRACTION"
	ZipExtractionInProgress ZipStatus = "EXTRACTION_IN_PROGRESS"
	ZipExtractionSuccess    ZipStatus = "EXTRACTION_SUCCESS"
	ZipExtractionFailed     ZipStatus = "EXTRACTION_FAILED"
	ZipTerminated           ZipStatus = "TERMINATED"
)

// Terminal reports whether the status is final.
func (s ZipStatus) Terminal() bool {
	switch s {
	case ZipExtractionSuccess, ZipExtractionFailed, ZipTerminated:
		return true
	}
	return false
}

// TerminableZipStatuses are the in-flight states admin termination sweeps.
var TerminableZipStatuses = []ZipStatus{ZipQueuedForExtraction, ZipExtractionInProgress}

// ZipMaster records one zip-shaped upload. 1:1 with its ProcessingJob.
type ZipMaster struct {
	ID               int64
	ProcessingJobID  int64 // unique
	GxBucketID       *int64
	OriginalFilePath string // object key of the uploaded archive
	OriginalFileName string
	FileSize         int64
	Status           ZipStatus
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
