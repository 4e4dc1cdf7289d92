package models

import "time"

// FileStatus is the processing status of a FileMaster.
type FileStatus string

const (
	FileQueued     FileStatus = "QUEUED"
	FileInProgress FileStatus = "IN_PROGRESS"
	FileCompleted  FileStatus = "COMPLETED"
	FileFailed     FileStatus = "FAILED"
	FileDuplicate  FileStatus = "DUPLICATE"
	FileIgnored    FileStatus = "IGNORED"
	FileTerminated FileStatus = "TERMINATED"
)

// Terminal reports whether the status is final.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileCompleted, FileFailed, FileDuplicate, FileIgnored, FileTerminated:
		return true
	}
	return false
}

// TerminableFileStatuses are the in-flight states admin termination sweeps.
var TerminableFileStatuses = []FileStatus{FileQueued, FileInProgress}

// SourceType records how a FileMaster came to exist.
type SourceType string

const (
	SourceUploaded    SourceType = "UPLOADED"    // direct upload via presigned URL
	SourceExtracted   SourceType = "EXTRACTED"   // pulled out of a ZIP or container
	SourceTransformed SourceType = "TRANSFORMED" // produced by a format conversion
)

// NoLocation is the sentinel object key for rows that never made it to
// storage (ignored and duplicate entries).
const NoLocation = "N/A"

// FileMaster is one unit of processing work. Rows are created by the job
// orchestrator (direct uploads, hash unknown) or by zip ingestion
// (extracted children, hash known).
//
// Uniqueness contract: (GxBucketID, FileHash) is unique among rows in a
// winner-eligible status (anything but FAILED, IGNORED, DUPLICATE and
// TERMINATED), enforced by a partial unique index. Loser rows keep the
// hash for audit without occupying the slot. Duplicate races recover
// through the winner query.
type FileMaster struct {
	ID                  int64
	ProcessingJobID     int64
	ZipMasterID         *int64
	GxBucketID          int64
	FileLocation        string
	FileName            string
	FileSize            int64
	Extension           string
	FileHash            *string // SHA-256 hex; nil until computed
	OriginalContentHash *string // immutable hash of the original bytes, when known
	SourceType          SourceType
	DuplicateOfFileID   *int64
	Status              FileStatus
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
