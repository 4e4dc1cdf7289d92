// Package httpapi holds the wire contracts of the HTTP surface: request
// and response DTOs, the response envelope, and the error-kind to HTTP
// status mapping. Handlers bind these onto the service layer.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/storage"
	"github.com/docforge/docforge/internal/store"
)

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success        bool   `json:"success"`
	DisplayMessage string `json:"displayMessage,omitempty"`
	Response       any    `json:"response,omitempty"`
	StatusCode     int    `json:"statusCode"`
	Timestamp      string `json:"timestamp"`
}

// OK wraps a successful payload.
func OK(statusCode int, payload any) Envelope {
	return Envelope{
		Success:    true,
		Response:   payload,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Failure wraps an error into the envelope with its mapped status.
func Failure(err error) Envelope {
	return Envelope{
		Success:        false,
		DisplayMessage: err.Error(),
		StatusCode:     StatusFor(err),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// StatusFor maps the core error kinds onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CreateUploadRequest creates a job and its upload credentials
// (POST /documents/v1/uploads/direct and .../multipart).
type CreateUploadRequest struct {
	FileName      string `json:"fileName"`
	GxBucketID    *int64 `json:"gxBucketId,omitempty"`
	SkipGxProcess bool   `json:"skipGxProcess"`
}

// CreateUploadResponse returns the job id and either the presigned PUT
// URL (direct) or the multipart upload id.
type CreateUploadResponse struct {
	JobID     int64  `json:"jobId"`
	UploadURL string `json:"uploadUrl,omitempty"`
	UploadID  string `json:"uploadId,omitempty"`
}

// PresignPartResponse returns one part-scoped presigned URL
// (GET /documents/v1/uploads/{jobId}/parts/{partNumber}).
type PresignPartResponse struct {
	PresignedURL string `json:"presignedUrl"`
}

// CompleteUploadRequest finishes a multipart upload
// (POST /documents/v1/uploads/{jobId}/complete).
type CompleteUploadRequest struct {
	UploadID string                  `json:"uploadId"`
	Parts    []storage.CompletedPart `json:"parts"`
}

// RetryRequest re-drives a failed file or errored gx master; exactly one
// id must be set (POST /documents/v1/jobs/retry).
type RetryRequest struct {
	FileMasterID *int64 `json:"fileMasterId,omitempty"`
	GxMasterID   *int64 `json:"gxMasterId,omitempty"`
}

// TerminateAllResponse reports the fleet termination outcome
// (POST /documents/v1/jobs/terminate-all-active).
type TerminateAllResponse struct {
	Message        string `json:"message"`
	JobsTerminated int64  `json:"jobsTerminated"`
}

// ListFilesRequest filters the per-bucket file view
// (POST /documents/v1/views/list/{gxBucketId}).
type ListFilesRequest struct {
	Status   models.FileStatus `json:"status,omitempty"`
	NameLike string            `json:"nameLike,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// Filter converts the request into the store filter.
func (r ListFilesRequest) Filter() store.FileFilter {
	return store.FileFilter{
		Status:   r.Status,
		NameLike: r.NameLike,
		Page:     r.Page,
		PageSize: r.PageSize,
	}
}

// FileView is one row of the list view.
type FileView struct {
	ID           int64             `json:"id"`
	FileName     string            `json:"fileName"`
	FileSize     int64             `json:"fileSize"`
	Extension    string            `json:"extension"`
	SourceType   models.SourceType `json:"sourceType"`
	Status       models.FileStatus `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// FileViewOf projects a FileMaster onto the view row.
func FileViewOf(f *models.FileMaster) FileView {
	return FileView{
		ID:           f.ID,
		FileName:     f.FileName,
		FileSize:     f.FileSize,
		Extension:    f.Extension,
		SourceType:   f.SourceType,
		Status:       f.Status,
		ErrorMessage: f.ErrorMessage,
		CreatedAt:    f.CreatedAt,
	}
}

// ListFilesResponse is the paginated file view.
type ListFilesResponse struct {
	Items      []FileView `json:"items"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalCount int64      `json:"totalCount"`
}

// MetricsRequest selects buckets for the status aggregation
// (POST /documents/v1/views/metrics).
type MetricsRequest struct {
	GxBucketIDs []int64 `json:"gxBucketIds"`
}

// MetricsResponse maps bucket id to per-status counts.
type MetricsResponse map[int64][]store.StatusCount

// DownloadRequest resolves a presigned download URL; gxMasterId takes
// priority (POST /documents/v1/downloads/presigned-url).
type DownloadRequest struct {
	FileMasterID *int64 `json:"fileMasterId,omitempty"`
	GxMasterID   *int64 `json:"gxMasterId,omitempty"`
}

// DownloadResponse carries the minted URL.
type DownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}
