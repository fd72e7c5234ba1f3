package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "a"}))
	require.Eventually(t, func() bool { return q.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), q.Stats().Retried)
	assert.Equal(t, int64(0), q.Stats().Failed)
}

func TestQueueGivesUpAndRecoversPanics(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		panic("boom")
	}, QueueConfig{MaxRetries: 0, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "a"}))
	require.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrQueueStopped)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrQueueStopped)
}

func TestStopWaitsForPendingRetries(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("transient")
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Hour, Logger: zap.New(core)})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "a"}))
	require.Eventually(t, func() bool { return q.Stats().Retried == 1 }, time.Second, 5*time.Millisecond)

	q.Stop()
	abandoned := logs.FilterMessage("retry abandoned, queue stopped")
	require.Equal(t, 1, abandoned.Len())
	assert.Equal(t, "a", abandoned.All()[0].ContextMap()["job_id"])
}
