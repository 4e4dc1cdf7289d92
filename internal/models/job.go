// Package models defines the persistent entities of the ingestion pipeline
// and the status machines that govern them.
package models

import "time"

// JobStatus is the lifecycle status of a ProcessingJob.
type JobStatus string

const (
	JobPendingUpload  JobStatus = "PENDING_UPLOAD"
	JobUploadComplete JobStatus = "UPLOAD_COMPLETE"
	JobQueued         JobStatus = "QUEUED"
	JobProcessing     JobStatus = "PROCESSING"
	JobCompleted      JobStatus = "COMPLETED"
	JobPartialSuccess JobStatus = "PARTIAL_SUCCESS"
	JobFailed         JobStatus = "FAILED"
	JobTerminated     JobStatus = "TERMINATED"
)

// Terminal reports whether the status is final. A terminal job never
// changes status again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobPartialSuccess, JobFailed, JobTerminated:
		return true
	}
	return false
}

// Terminable reports whether a job in this status may be terminated by an
// admin. Matches the terminable set used by the lifecycle manager.
func (s JobStatus) Terminable() bool {
	switch s {
	case JobPendingUpload, JobUploadComplete, JobQueued, JobProcessing:
		return true
	}
	return false
}

// TerminableJobStatuses is the admin-termination candidate set.
var TerminableJobStatuses = []JobStatus{
	JobPendingUpload, JobUploadComplete, JobQueued, JobProcessing,
}

// ProcessingJob is the root entity of one upload. A job owns at most one
// ZipMaster and any number of FileMasters.
type ProcessingJob struct {
	ID               int64
	OriginalFilename string
	FileLocation     string // object key of the uploaded source
	Status           JobStatus
	CurrentStage     string
	ErrorMessage     string
	Remark           string
	GxBucketID       *int64 // nil marks a bulk job
	SkipGxProcess    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Bulk reports whether the job resolves its bucket per file from the ZIP
// folder layout instead of a job-level bucket.
func (j *ProcessingJob) Bulk() bool {
	return j.GxBucketID == nil
}
