package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeProcessedStore struct {
	olderThan time.Duration
	calls     int
	err       error
}

func (f *fakeProcessedStore) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.calls++
	f.olderThan = olderThan
	return f.err
}

func TestProcessedCleanupPassesRetention(t *testing.T) {
	store := &fakeProcessedStore{}
	job := NewProcessedCleanupJob(store, nil, nil)

	task, err := NewProcessedCleanupTask(ProcessedCleanupPayload{RetentionDays: 30})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, store.calls)
	require.Equal(t, 30*24*time.Hour, store.olderThan)
}

func TestProcessedCleanupDefaultsRetention(t *testing.T) {
	store := &fakeProcessedStore{}
	job := NewProcessedCleanupJob(store, nil, nil)

	task, err := NewProcessedCleanupTask(ProcessedCleanupPayload{})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 90*24*time.Hour, store.olderThan)
}

func TestProcessedCleanupPropagatesError(t *testing.T) {
	store := &fakeProcessedStore{err: errors.New("db down")}
	job := NewProcessedCleanupJob(store, nil, nil)

	task, err := NewProcessedCleanupTask(ProcessedCleanupPayload{RetentionDays: 7})
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestProcessedCleanupSkipsRetryOnBadPayload(t *testing.T) {
	job := NewProcessedCleanupJob(&fakeProcessedStore{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskProcessedCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
