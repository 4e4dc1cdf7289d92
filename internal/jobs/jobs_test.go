package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/storage"
)

// fakeTx backs both the Tx and TxRunner sides: RunTx hands the same
// struct to fn and fires the collected hooks only when fn succeeds,
// matching the commit ordering of the real store.
type fakeTx struct {
	jobs   map[int64]*models.ProcessingJob
	zips   map[int64]*models.ZipMaster
	files  map[int64]*models.FileMaster
	gxs    map[int64]*models.GxMaster
	nextID int64

	hooks []func(context.Context)
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		jobs:   make(map[int64]*models.ProcessingJob),
		zips:   make(map[int64]*models.ZipMaster),
		files:  make(map[int64]*models.FileMaster),
		gxs:    make(map[int64]*models.GxMaster),
		nextID: 40,
	}
}

func (x *fakeTx) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	x.hooks = nil
	if err := fn(ctx, x); err != nil {
		return err
	}
	for _, hook := range x.hooks {
		hook(ctx)
	}
	return nil
}

func (x *fakeTx) CreateJob(_ context.Context, j *models.ProcessingJob) error {
	x.nextID++
	j.ID = x.nextID
	x.jobs[j.ID] = j
	return nil
}

func (x *fakeTx) UpdateJobLocation(_ context.Context, id int64, key string) error {
	x.jobs[id].FileLocation = key
	return nil
}

func (x *fakeTx) UpdateJobStatus(_ context.Context, id int64, newStatus models.JobStatus, expected []models.JobStatus) (bool, error) {
	j := x.jobs[id]
	for _, e := range expected {
		if j.Status == e {
			j.Status = newStatus
			return true, nil
		}
	}
	return false, nil
}

func (x *fakeTx) UpsertZipForJob(_ context.Context, z *models.ZipMaster) (*models.ZipMaster, error) {
	for _, existing := range x.zips {
		if existing.ProcessingJobID == z.ProcessingJobID {
			return existing, nil
		}
	}
	x.nextID++
	z.ID = x.nextID
	x.zips[z.ID] = z
	return z, nil
}

func (x *fakeTx) CreateFile(_ context.Context, f *models.FileMaster) error {
	x.nextID++
	f.ID = x.nextID
	x.files[f.ID] = f
	return nil
}

func (x *fakeTx) AfterCommit(fn func(context.Context)) {
	x.hooks = append(x.hooks, fn)
}

func (x *fakeTx) GetJob(_ context.Context, id int64) (*models.ProcessingJob, error) {
	j, ok := x.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return j, nil
}

func (x *fakeTx) GetFile(_ context.Context, id int64) (*models.FileMaster, error) {
	f, ok := x.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return f, nil
}

func (x *fakeTx) GetGx(_ context.Context, id int64) (*models.GxMaster, error) {
	g, ok := x.gxs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return g, nil
}

func (x *fakeTx) FinishJob(_ context.Context, id int64, status models.JobStatus, errMsg, remark string) (bool, error) {
	j := x.jobs[id]
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = status
	j.ErrorMessage = errMsg
	j.Remark = remark
	return true, nil
}

type fakeObjects struct {
	completed [][]storage.CompletedPart
}

func (o *fakeObjects) PresignUpload(_ context.Context, key string) (string, error) {
	return "https://put/" + key, nil
}

func (o *fakeObjects) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://get/" + key, nil
}

func (o *fakeObjects) InitiateMultipart(_ context.Context, key string) (string, error) {
	return "upload-" + key, nil
}

func (o *fakeObjects) PresignPart(_ context.Context, key, uploadID string, partNumber int32) (string, error) {
	return fmt.Sprintf("https://part/%s/%s/%d", key, uploadID, partNumber), nil
}

func (o *fakeObjects) CompleteMultipart(_ context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	o.completed = append(o.completed, parts)
	return nil
}

type sentMessage struct {
	queueURL string
	payload  any
	groupID  string
	dedupID  string
}

type fakeQueue struct {
	sent []sentMessage
}

func (q *fakeQueue) Send(_ context.Context, queueURL string, payload any, groupID, dedupID string) error {
	q.sent = append(q.sent, sentMessage{queueURL, payload, groupID, dedupID})
	return nil
}

func fixture() (*Service, *fakeTx, *fakeObjects, *fakeQueue) {
	cfg := config.New()
	cfg.Queue.ZipQueueURL = "zip-queue"
	cfg.Queue.FileQueueURL = "file-queue"
	tx := newFakeTx()
	objects := &fakeObjects{}
	q := &fakeQueue{}
	return New(cfg, tx, tx, objects, q), tx, objects, q
}

func TestCreateJobAndPresignedURL(t *testing.T) {
	svc, tx, _, _ := fixture()
	bucket := int64(7)

	created, err := svc.CreateJobAndPresignedURL(context.Background(), "Quarterly Report.pdf", &bucket, false)
	require.NoError(t, err)

	job := tx.jobs[created.JobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobPendingUpload, job.Status)
	assert.Equal(t, "Quarterly Report.pdf", job.OriginalFilename)

	// The key embeds the fresh job id and a sanitized name.
	wantKey := fmt.Sprintf("7/source/%d/Quarterly_Report.pdf", created.JobID)
	assert.Equal(t, wantKey, created.Key)
	assert.Equal(t, wantKey, job.FileLocation)
	assert.Equal(t, "https://put/"+wantKey, created.UploadURL)
	assert.Empty(t, created.UploadID)
}

func TestCreateJobBulkUsesBulkPrefix(t *testing.T) {
	svc, tx, _, _ := fixture()

	created, err := svc.CreateJobAndPresignedURL(context.Background(), "tenants.zip", nil, false)
	require.NoError(t, err)

	assert.True(t, tx.jobs[created.JobID].Bulk())
	assert.Equal(t, fmt.Sprintf("bulk/source/%d/tenants.zip", created.JobID), created.Key)
}

func TestCreateJobRejectsBlankName(t *testing.T) {
	svc, tx, _, _ := fixture()
	for _, name := range []string{"", "   ", "/", "."} {
		_, err := svc.CreateJobAndPresignedURL(context.Background(), name, nil, false)
		require.ErrorIs(t, err, models.ErrValidation, "name %q", name)
	}
	assert.Empty(t, tx.jobs)
}

func TestMultipartLifecycle(t *testing.T) {
	svc, tx, objects, _ := fixture()
	bucket := int64(7)

	created, err := svc.CreateJobAndInitiateMultipartUpload(context.Background(), "huge.zip", &bucket, false)
	require.NoError(t, err)
	assert.Equal(t, "upload-"+created.Key, created.UploadID)
	assert.Empty(t, created.UploadURL)

	partURL, err := svc.PresignPart(context.Background(), created.JobID, created.UploadID, 3)
	require.NoError(t, err)
	assert.Contains(t, partURL, created.Key)
	assert.Contains(t, partURL, "/3")

	parts := []storage.CompletedPart{{PartNumber: 1, ETag: "e1"}, {PartNumber: 2, ETag: "e2"}}
	require.NoError(t, svc.CompleteMultipartUpload(context.Background(), created.JobID, created.UploadID, parts))

	require.Len(t, objects.completed, 1)
	assert.Equal(t, parts, objects.completed[0])
	assert.Equal(t, models.JobUploadComplete, tx.jobs[created.JobID].Status)
}

func TestTriggerZipJob(t *testing.T) {
	svc, tx, _, q := fixture()
	bucket := int64(7)
	tx.jobs[1] = &models.ProcessingJob{
		ID: 1, OriginalFilename: "batch.zip", FileLocation: "7/source/1/batch.zip",
		GxBucketID: &bucket, Status: models.JobUploadComplete,
	}

	require.NoError(t, svc.TriggerProcessing(context.Background(), 1))

	assert.Equal(t, models.JobQueued, tx.jobs[1].Status)
	require.Len(t, tx.zips, 1)
	var zip *models.ZipMaster
	for _, z := range tx.zips {
		zip = z
	}
	assert.Equal(t, models.ZipQueuedForExtraction, zip.Status)
	assert.Equal(t, "7/source/1/batch.zip", zip.OriginalFilePath)

	require.Len(t, q.sent, 1)
	assert.Equal(t, "zip-queue", q.sent[0].queueURL)
	assert.Equal(t, models.ZipMessage{ZipMasterID: zip.ID}, q.sent[0].payload)
	assert.Equal(t, "zip-job-1", q.sent[0].groupID)
	assert.Equal(t, fmt.Sprintf("zip-master-%d", zip.ID), q.sent[0].dedupID)
}

func TestTriggerSingleFileJob(t *testing.T) {
	svc, tx, _, q := fixture()
	bucket := int64(7)
	tx.jobs[1] = &models.ProcessingJob{
		ID: 1, OriginalFilename: "report.pdf", FileLocation: "7/source/1/report.pdf",
		GxBucketID: &bucket, Status: models.JobUploadComplete,
	}

	require.NoError(t, svc.TriggerProcessing(context.Background(), 1))

	assert.Equal(t, models.JobQueued, tx.jobs[1].Status)
	require.Len(t, tx.files, 1)
	var file *models.FileMaster
	for _, f := range tx.files {
		file = f
	}
	assert.Equal(t, models.FileQueued, file.Status)
	assert.Equal(t, models.SourceUploaded, file.SourceType)
	assert.Equal(t, "pdf", file.Extension)
	assert.Equal(t, "7/source/1/report.pdf", file.FileLocation)
	assert.Nil(t, file.FileHash, "hash settles in the pipeline")

	require.Len(t, q.sent, 1)
	assert.Equal(t, "file-queue", q.sent[0].queueURL)
	assert.Equal(t, "7", q.sent[0].groupID)
	assert.Equal(t, fmt.Sprintf("file-master-%d", file.ID), q.sent[0].dedupID)
}

func TestTriggerBulkNonZipFailsJob(t *testing.T) {
	svc, tx, _, q := fixture()
	tx.jobs[1] = &models.ProcessingJob{
		ID: 1, OriginalFilename: "report.pdf", Status: models.JobUploadComplete,
	}

	err := svc.TriggerProcessing(context.Background(), 1)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, models.JobFailed, tx.jobs[1].Status)
	assert.Contains(t, tx.jobs[1].ErrorMessage, "requires a zip archive")
	assert.Empty(t, q.sent)
}

func TestTriggerRejectsWrongStatus(t *testing.T) {
	svc, tx, _, _ := fixture()
	bucket := int64(7)
	for _, status := range []models.JobStatus{models.JobQueued, models.JobProcessing, models.JobCompleted, models.JobTerminated} {
		tx.jobs[1] = &models.ProcessingJob{ID: 1, OriginalFilename: "a.pdf", GxBucketID: &bucket, Status: status}
		err := svc.TriggerProcessing(context.Background(), 1)
		require.ErrorIs(t, err, models.ErrConflict, "status %s", status)
	}
}

func TestPresignDownloadPrefersGx(t *testing.T) {
	svc, tx, _, _ := fixture()
	tx.files[10] = &models.FileMaster{ID: 10, FileLocation: "7/files/1/a.pdf"}
	tx.gxs[100] = &models.GxMaster{ID: 100, FileLocation: "7/files/1/a_part1.pdf"}

	fileID, gxID := int64(10), int64(100)
	url, err := svc.PresignDownload(context.Background(), &fileID, &gxID)
	require.NoError(t, err)
	assert.Equal(t, "https://get/7/files/1/a_part1.pdf", url)

	url, err = svc.PresignDownload(context.Background(), &fileID, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://get/7/files/1/a.pdf", url)
}

func TestPresignDownloadUnstoredEntity(t *testing.T) {
	svc, tx, _, _ := fixture()
	tx.files[10] = &models.FileMaster{ID: 10, FileLocation: models.NoLocation}
	fileID := int64(10)

	_, err := svc.PresignDownload(context.Background(), &fileID, nil)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.PresignDownload(context.Background(), nil, nil)
	require.ErrorIs(t, err, models.ErrValidation)
}
