package uploader

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	err      error
}

func (s *fakeStorage) UploadFile(_ context.Context, key, path string) error {
	if s.err != nil {
		return s.err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[key] = content
	return nil
}

type recordingAction struct {
	mu        sync.Mutex
	succeeded []int64
	failed    map[int64]string
}

func newRecordingAction() *recordingAction {
	return &recordingAction{failed: make(map[int64]string)}
}

func (a *recordingAction) OnSuccess(_ context.Context, entityID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded = append(a.succeeded, entityID)
}

func (a *recordingAction) OnFailure(_ context.Context, entityID int64, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[entityID] = errMsg
}

func TestScheduleUploadsAndReportsSuccess(t *testing.T) {
	storage := &fakeStorage{uploaded: make(map[string][]byte)}
	action := newRecordingAction()
	u := New(storage, t.TempDir())

	u.Schedule(context.Background(), 42, "7/files/1/a.pdf", []byte("artifact bytes"), action)
	u.Wait()

	assert.Equal(t, []byte("artifact bytes"), storage.uploaded["7/files/1/a.pdf"])
	assert.Equal(t, []int64{42}, action.succeeded)
	assert.Empty(t, action.failed)
}

func TestScheduleReportsUploadFailure(t *testing.T) {
	storage := &fakeStorage{uploaded: make(map[string][]byte), err: errors.New("bucket gone")}
	action := newRecordingAction()
	u := New(storage, t.TempDir())

	u.Schedule(context.Background(), 42, "k", []byte("bytes"), action)
	u.Wait()

	assert.Empty(t, action.succeeded)
	assert.Equal(t, "bucket gone", action.failed[42])
}

func TestWaitCoversAllScheduledUploads(t *testing.T) {
	storage := &fakeStorage{uploaded: make(map[string][]byte)}
	action := newRecordingAction()
	u := New(storage, t.TempDir())

	for i := int64(1); i <= 20; i++ {
		u.Schedule(context.Background(), i, "key", []byte("x"), action)
	}
	u.Wait()

	require.Len(t, action.succeeded, 20)
}
