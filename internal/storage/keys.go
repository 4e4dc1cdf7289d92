// Package storage provides the S3-backed object store: presigned URLs,
// streaming get/put, server-side copy, and multipart uploads.
package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Key kinds: "source" holds original uploads, "files" holds final
// artifacts and extracted children.
const (
	KindSource = "source"
	KindFiles  = "files"
)

// BulkPrefix replaces the bucket segment for jobs whose bucket is
// resolved per file from the ZIP layout.
const BulkPrefix = "bulk"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SafeName replaces every character outside [A-Za-z0-9._-] with an
// underscore. Deterministic: the same input always yields the same key.
func SafeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return unsafeKeyChars.ReplaceAllString(base, "_")
}

// ConstructKey builds the object key for a file belonging to a job.
// Single-bucket jobs use "{bucket}/{kind}/{jobID}/{safe}"; bulk jobs
// (gxBucketID nil) use "bulk/{kind}/{jobID}/{safe}".
func ConstructKey(gxBucketID *int64, kind string, jobID int64, fileName string) string {
	prefix := BulkPrefix
	if gxBucketID != nil {
		prefix = fmt.Sprintf("%d", *gxBucketID)
	}
	return fmt.Sprintf("%s/%s/%d/%s", prefix, kind, jobID, SafeName(fileName))
}

// ConstructBucketKey is ConstructKey for a known bucket id. Used on the
// zip ingestion path where every entry has a resolved bucket.
func ConstructBucketKey(gxBucketID int64, kind string, jobID int64, fileName string) string {
	return ConstructKey(&gxBucketID, kind, jobID, fileName)
}
