package models

import "time"

// GxStatus tracks a final artifact through upload and downstream GX
// ingestion. The early states (QUEUED_FOR_UPLOAD, READING) are local;
// the rest mirror what the GX status API reports.
type GxStatus string

const (
	GxQueuedForUpload GxStatus = "QUEUED_FOR_UPLOAD"
	GxReading         GxStatus = "READING"
	GxQueued          GxStatus = "QUEUED"
	GxProcessing      GxStatus = "PROCESSING"
	GxComplete        GxStatus = "COMPLETE"
	GxError           GxStatus = "ERROR"
	GxCancelled       GxStatus = "CANCELLED"
	GxSkipped         GxStatus = "SKIPPED"
	GxIgnored         GxStatus = "IGNORED"
	GxTerminated      GxStatus = "TERMINATED"
	GxDuplicate       GxStatus = "DUPLICATE"
	GxActive          GxStatus = "ACTIVE"
	GxInactive        GxStatus = "INACTIVE"
)

// Succeeded reports whether the artifact reached a terminal success state.
func (s GxStatus) Succeeded() bool {
	return s == GxComplete || s == GxSkipped
}

// NilUUID is the gxProcessId recorded when GX submission is skipped.
const NilUUID = "00000000-0000-0000-0000-000000000000"

// GxMaster is one final artifact handed to the downstream ingestion
// service. Several rows may reference the same FileMaster (PDF splits).
type GxMaster struct {
	ID                int64
	SourceFileID      int64
	GxBucketID        int64
	FileLocation      string
	ProcessedFileName string
	FileSize          int64
	Extension         string
	Status            GxStatus
	GxProcessID       string // UUID assigned by GX; NilUUID when skipped
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
