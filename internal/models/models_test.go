package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobPendingUpload, false},
		{JobUploadComplete, false},
		{JobQueued, false},
		{JobProcessing, false},
		{JobCompleted, true},
		{JobPartialSuccess, true},
		{JobFailed, true},
		{JobTerminated, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		// Terminable and terminal are disjoint over the job machine.
		if tt.status.Terminable() == tt.terminal {
			t.Errorf("%s: Terminable() and Terminal() must disagree", tt.status)
		}
	}
}

func TestFileStatusTerminal(t *testing.T) {
	terminal := []FileStatus{FileCompleted, FileFailed, FileDuplicate, FileIgnored, FileTerminated}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []FileStatus{FileQueued, FileInProgress} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestZipStatusTerminal(t *testing.T) {
	for _, s := range []ZipStatus{ZipExtractionSuccess, ZipExtractionFailed, ZipTerminated} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range TerminableZipStatuses {
		if s.Terminal() {
			t.Errorf("%s is terminable and must not be terminal", s)
		}
	}
}

func TestGxStatusSucceeded(t *testing.T) {
	if !GxComplete.Succeeded() || !GxSkipped.Succeeded() {
		t.Error("COMPLETE and SKIPPED must count as success")
	}
	for _, s := range []GxStatus{GxError, GxCancelled, GxQueued, GxProcessing, GxQueuedForUpload} {
		if s.Succeeded() {
			t.Errorf("%s.Succeeded() = true, want false", s)
		}
	}
}

func TestBulkJob(t *testing.T) {
	bucket := int64(7)
	if (&ProcessingJob{GxBucketID: &bucket}).Bulk() {
		t.Error("job with a bucket must not be bulk")
	}
	if !(&ProcessingJob{}).Bulk() {
		t.Error("job without a bucket must be bulk")
	}
}

func TestMessageIdentifiers(t *testing.T) {
	if got := ZipGroupID(42); got != "zip-job-42" {
		t.Errorf("ZipGroupID = %q", got)
	}
	if got := ZipDedupID(7); got != "zip-master-7" {
		t.Errorf("ZipDedupID = %q", got)
	}
	if got := FileGroupID(9); got != "9" {
		t.Errorf("FileGroupID = %q", got)
	}
	if got := FileDedupID(9, "abc"); got != "file-9-abc" {
		t.Errorf("FileDedupID = %q", got)
	}
	if got := FileMasterDedupID(3); got != "file-master-3" {
		t.Errorf("FileMasterDedupID = %q", got)
	}
}

func TestRetryDedupIDIsFresh(t *testing.T) {
	a, b := RetryDedupID(5), RetryDedupID(5)
	if a == b {
		t.Errorf("retry dedup ids must differ: %q", a)
	}
	if !strings.HasPrefix(a, "file-master-5-") {
		t.Errorf("unexpected retry dedup id %q", a)
	}
}

func TestTransientf(t *testing.T) {
	err := Transientf("boom: %d", 7)
	if !IsTransient(err) {
		t.Fatal("Transientf must produce a transient error")
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatal("Transientf must wrap ErrTransient")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !IsTransient(wrapped) {
		t.Fatal("transience must survive wrapping")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatal("plain errors are not transient")
	}
}
