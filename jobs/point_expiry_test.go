package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/buildpoint/buildpoint/internal/points"
)

type fakeExpiryRunner struct {
	gotLimit int
	result   points.ExpiryRunResult
	err      error
}

func (f *fakeExpiryRunner) ProcessExpiry(ctx context.Context, batchLimit int) (points.ExpiryRunResult, error) {
	f.gotLimit = batchLimit
	return f.result, f.err
}

func TestPointExpiryJobRunsSweep(t *testing.T) {
	runner := &fakeExpiryRunner{result: points.ExpiryRunResult{ProcessedCount: 2, TotalPointsExpired: 7}}
	job := NewPointExpiryJob(runner, nil, nil)

	task, err := NewExpirySweepTask(ExpirySweepPayload{BatchLimit: 50})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 50, runner.gotLimit)
}

func TestPointExpiryJobDefaultsBatchLimit(t *testing.T) {
	runner := &fakeExpiryRunner{}
	job := NewPointExpiryJob(runner, nil, nil)

	task, err := NewExpirySweepTask(ExpirySweepPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 500, runner.gotLimit)
}

func TestPointExpiryJobPropagatesError(t *testing.T) {
	runner := &fakeExpiryRunner{err: errors.New("db down")}
	job := NewPointExpiryJob(runner, nil, nil)

	task, err := NewExpirySweepTask(ExpirySweepPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestPointExpiryJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewPointExpiryJob(&fakeExpiryRunner{}, nil, nil)

	task := asynq.NewTask(TaskPointExpirySweep, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
