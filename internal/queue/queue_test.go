package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	err  error
	opts []asynq.Option
	got  []*asynq.Task
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.got = append(f.got, task)
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestEnqueueQueued(t *testing.T) {
	client := &fakeClient{}
	e := Enqueuer{Client: client, Queue: "reports", MaxAttempts: 3}

	id, queued, err := e.Enqueue(context.Background(), asynq.NewTask("test:queued", nil))
	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, "task-1", id)
	require.Len(t, client.opts, 2)
	require.Equal(t, 1.0, testutil.ToFloat64(QueueEnqueuedTotal.WithLabelValues("test:queued", "queued")))
}

func TestEnqueueDuplicateIsNotAnError(t *testing.T) {
	e := Enqueuer{Client: &fakeClient{err: asynq.ErrDuplicateTask}, Unique: 1}

	_, queued, err := e.Enqueue(context.Background(), asynq.NewTask("test:dup", nil))
	require.NoError(t, err)
	require.False(t, queued)
}

func TestEnqueueWithoutClient(t *testing.T) {
	_, _, err := Enqueuer{}.Enqueue(context.Background(), asynq.NewTask("test:none", nil))
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestInstrumentCountsOutcomes(t *testing.T) {
	boom := errors.New("boom")
	h := Instrument(zerolog.Nop())(asynq.HandlerFunc(func(_ context.Context, task *asynq.Task) error {
		if string(task.Payload()) == "fail" {
			return boom
		}
		return nil
	}))

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask("test:inst", []byte("ok"))))
	require.ErrorIs(t, h.ProcessTask(context.Background(), asynq.NewTask("test:inst", []byte("fail"))), boom)
	require.Equal(t, 1.0, testutil.ToFloat64(QueueProcessedTotal.WithLabelValues("test:inst", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(QueueProcessedTotal.WithLabelValues("test:inst", "error")))
}
