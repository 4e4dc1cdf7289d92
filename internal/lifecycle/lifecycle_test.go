package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
)

// fakeStore implements Store and ReconcileStore over in-memory maps.
type fakeStore struct {
	jobs  map[int64]*models.ProcessingJob
	zips  map[int64]*models.ZipMaster
	files map[int64]*models.FileMaster
	gxs   map[int64]*models.GxMaster

	terminatedJobSweeps int
	childSweeps         []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  make(map[int64]*models.ProcessingJob),
		zips:  make(map[int64]*models.ZipMaster),
		files: make(map[int64]*models.FileMaster),
		gxs:   make(map[int64]*models.GxMaster),
	}
}

func (s *fakeStore) GetJob(_ context.Context, id int64) (*models.ProcessingJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return j, nil
}

func (s *fakeStore) GetZip(_ context.Context, id int64) (*models.ZipMaster, error) {
	z, ok := s.zips[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return z, nil
}

func (s *fakeStore) GetFile(_ context.Context, id int64) (*models.FileMaster, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return f, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error) {
	j, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	for _, e := range expected {
		if j.Status == e {
			j.Status = newStatus
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) FinishJob(_ context.Context, id int64, status models.JobStatus, errMsg, remark string) (bool, error) {
	j, ok := s.jobs[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = status
	j.ErrorMessage = errMsg
	j.Remark = remark
	return true, nil
}

func (s *fakeStore) FailZip(_ context.Context, id int64, errMsg string) (bool, error) {
	z, ok := s.zips[id]
	if !ok || z.Status.Terminal() {
		return false, nil
	}
	z.Status = models.ZipExtractionFailed
	z.ErrorMessage = errMsg
	return true, nil
}

func (s *fakeStore) FailFile(_ context.Context, id int64, errMsg string) (bool, error) {
	f, ok := s.files[id]
	if !ok || f.Status.Terminal() {
		return false, nil
	}
	f.Status = models.FileFailed
	f.ErrorMessage = errMsg
	return true, nil
}

func (s *fakeStore) FailGx(_ context.Context, id int64, errMsg string) error {
	s.gxs[id].Status = models.GxError
	s.gxs[id].ErrorMessage = errMsg
	return nil
}

func (s *fakeStore) TerminateActiveJobs(_ context.Context) (int64, error) {
	s.terminatedJobSweeps++
	var n int64
	for _, j := range s.jobs {
		if j.Status.Terminable() {
			j.Status = models.JobTerminated
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) TerminateZipsForJobs(_ context.Context, jobIDs []int64) (int64, error) {
	s.childSweeps = append(s.childSweeps, "zips")
	var n int64
	for _, z := range s.zips {
		if matchesJobs(z.ProcessingJobID, jobIDs) && !z.Status.Terminal() {
			z.Status = models.ZipTerminated
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) TerminateFilesForJobs(_ context.Context, jobIDs []int64) (int64, error) {
	s.childSweeps = append(s.childSweeps, "files")
	var n int64
	for _, f := range s.files {
		if matchesJobs(f.ProcessingJobID, jobIDs) && !f.Status.Terminal() {
			f.Status = models.FileTerminated
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) TerminateGxForJobs(_ context.Context, jobIDs []int64) (int64, error) {
	s.childSweeps = append(s.childSweeps, "gx")
	var n int64
	for _, g := range s.gxs {
		file, ok := s.files[g.SourceFileID]
		if !ok {
			continue
		}
		if matchesJobs(file.ProcessingJobID, jobIDs) && !g.Status.Succeeded() && g.Status != models.GxError {
			g.Status = models.GxTerminated
			n++
		}
	}
	return n, nil
}

func matchesJobs(jobID int64, jobIDs []int64) bool {
	if jobIDs == nil {
		return true
	}
	for _, id := range jobIDs {
		if id == jobID {
			return true
		}
	}
	return false
}

func (s *fakeStore) ListJobsByStatus(_ context.Context, statuses []models.JobStatus) ([]*models.ProcessingJob, error) {
	var out []*models.ProcessingJob
	for _, j := range s.jobs {
		for _, st := range statuses {
			if j.Status == st {
				out = append(out, j)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListZipsByJob(_ context.Context, jobID int64) ([]*models.ZipMaster, error) {
	var out []*models.ZipMaster
	for _, z := range s.zips {
		if z.ProcessingJobID == jobID {
			out = append(out, z)
		}
	}
	return out, nil
}

func (s *fakeStore) ListFilesByJob(_ context.Context, jobID int64) ([]*models.FileMaster, error) {
	var out []*models.FileMaster
	for _, f := range s.files {
		if f.ProcessingJobID == jobID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) ListGxByJob(_ context.Context, jobID int64) ([]*models.GxMaster, error) {
	var out []*models.GxMaster
	for _, g := range s.gxs {
		if f, ok := s.files[g.SourceFileID]; ok && f.ProcessingJobID == jobID {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakePurger struct {
	purged [][]string
}

func (q *fakePurger) PurgeAll(_ context.Context, queueURLs []string) error {
	q.purged = append(q.purged, queueURLs)
	return nil
}

func fixture() (*Manager, *fakeStore, *fakePurger) {
	cfg := config.New()
	cfg.Queue.ZipQueueURL = "zip-queue"
	cfg.Queue.FileQueueURL = "file-queue"
	st := newFakeStore()
	q := &fakePurger{}
	return NewManager(cfg, st, q), st, q
}

func TestTerminateJobCascades(t *testing.T) {
	m, st, _ := fixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.zips[5] = &models.ZipMaster{ID: 5, ProcessingJobID: 1, Status: models.ZipExtractionInProgress}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileQueued}
	st.files[11] = &models.FileMaster{ID: 11, ProcessingJobID: 1, Status: models.FileCompleted}
	st.gxs[100] = &models.GxMaster{ID: 100, SourceFileID: 11, Status: models.GxQueued}

	won, err := m.TerminateJob(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, won)

	assert.Equal(t, models.JobTerminated, st.jobs[1].Status)
	assert.Equal(t, models.ZipTerminated, st.zips[5].Status)
	assert.Equal(t, models.FileTerminated, st.files[10].Status)
	assert.Equal(t, models.FileCompleted, st.files[11].Status, "settled children stay put")
	assert.Equal(t, models.GxTerminated, st.gxs[100].Status)
}

func TestTerminateJobIsNoOpOnTerminalJob(t *testing.T) {
	m, st, _ := fixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobCompleted}

	won, err := m.TerminateJob(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Empty(t, st.childSweeps, "no child sweeps when the CAS loses")
}

func TestTerminateAllActiveJobsPurgesQueues(t *testing.T) {
	m, st, q := fixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobQueued}
	st.jobs[2] = &models.ProcessingJob{ID: 2, Status: models.JobProcessing}
	st.jobs[3] = &models.ProcessingJob{ID: 3, Status: models.JobCompleted}

	n, err := m.TerminateAllActiveJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, models.JobCompleted, st.jobs[3].Status)

	require.Len(t, q.purged, 1)
	assert.Equal(t, []string{"zip-queue", "file-queue"}, q.purged[0])
}

func TestFailJobForZipExtraction(t *testing.T) {
	m, st, _ := fixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.zips[5] = &models.ZipMaster{ID: 5, ProcessingJobID: 1, Status: models.ZipExtractionInProgress}

	require.NoError(t, m.FailJobForZipExtraction(context.Background(), 5, "corrupt archive"))

	assert.Equal(t, models.ZipExtractionFailed, st.zips[5].Status)
	assert.Equal(t, "corrupt archive", st.zips[5].ErrorMessage)
	assert.Equal(t, models.JobFailed, st.jobs[1].Status)
	assert.Equal(t, "corrupt archive", st.jobs[1].ErrorMessage)
}

func TestFailJobForFileProcessingLeavesTerminalJob(t *testing.T) {
	m, st, _ := fixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobTerminated}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileInProgress}

	require.NoError(t, m.FailJobForFileProcessing(context.Background(), 10, "handler crashed"))

	assert.Equal(t, models.FileFailed, st.files[10].Status)
	assert.Equal(t, models.JobTerminated, st.jobs[1].Status, "terminal status is never overwritten")
}

func TestOutcomeRemark(t *testing.T) {
	tests := []struct {
		succeeded, failed, ignored, duplicates int
		want                                   string
	}{
		{3, 0, 0, 0, "3 succeeded, 0 failed."},
		{3, 1, 0, 0, "3 succeeded, 1 failed."},
		{3, 1, 2, 0, "3 succeeded, 1 failed, 2 ignored."},
		{3, 1, 0, 4, "3 succeeded, 1 failed, 4 duplicates."},
		{3, 1, 2, 4, "3 succeeded, 1 failed, 2 ignored, 4 duplicates."},
	}
	for _, tt := range tests {
		got := outcomeRemark(tt.succeeded, tt.failed, tt.ignored, tt.duplicates)
		assert.Equal(t, tt.want, got)
	}
}

func reconcilerFixture() (*Reconciler, *fakeStore) {
	m, st, _ := fixture()
	return NewReconciler(st, m), st
}

func TestReconcileSkipsWhileWorkPending(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}
	st.files[11] = &models.FileMaster{ID: 11, ProcessingJobID: 1, Status: models.FileInProgress}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobProcessing, st.jobs[1].Status)
}

func TestReconcileSkipsWhileGxInFlight(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}
	st.gxs[100] = &models.GxMaster{ID: 100, SourceFileID: 10, Status: models.GxProcessing}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobProcessing, st.jobs[1].Status)
}

func TestReconcileSkipsBeforeChildrenExist(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobQueued}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobQueued, st.jobs[1].Status)
}

func TestReconcileFailedExtractionDecidesJob(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.zips[5] = &models.ZipMaster{
		ID: 5, ProcessingJobID: 1,
		Status: models.ZipExtractionFailed, ErrorMessage: "bad central directory",
	}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobFailed, st.jobs[1].Status)
	assert.Equal(t, "bad central directory", st.jobs[1].ErrorMessage)
}

func TestReconcileCompletesJob(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}
	st.files[11] = &models.FileMaster{ID: 11, ProcessingJobID: 1, Status: models.FileIgnored}
	st.files[12] = &models.FileMaster{ID: 12, ProcessingJobID: 1, Status: models.FileDuplicate}
	st.gxs[100] = &models.GxMaster{ID: 100, SourceFileID: 10, Status: models.GxComplete}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobCompleted, st.jobs[1].Status)
	assert.Equal(t, "1 succeeded, 0 failed, 1 ignored, 1 duplicates.", st.jobs[1].Remark)
}

func TestReconcilePartialSuccess(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}
	st.files[11] = &models.FileMaster{ID: 11, ProcessingJobID: 1, Status: models.FileFailed, ErrorMessage: "boom"}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobPartialSuccess, st.jobs[1].Status)
	assert.Equal(t, "1 succeeded, 1 failed.", st.jobs[1].Remark)
}

func TestReconcileGxErrorCountsFileAsFailed(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileCompleted}
	st.gxs[100] = &models.GxMaster{
		ID: 100, SourceFileID: 10,
		Status: models.GxError, ErrorMessage: "ingest rejected",
	}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobFailed, st.jobs[1].Status)
	assert.Equal(t, "ingest rejected", st.jobs[1].ErrorMessage)
}

func TestReconcileAllIgnoredCompletes(t *testing.T) {
	r, st := reconcilerFixture()
	st.jobs[1] = &models.ProcessingJob{ID: 1, Status: models.JobProcessing}
	st.files[10] = &models.FileMaster{ID: 10, ProcessingJobID: 1, Status: models.FileIgnored}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, models.JobCompleted, st.jobs[1].Status)
	assert.Equal(t, "0 succeeded, 0 failed, 1 ignored.", st.jobs[1].Remark)
}
