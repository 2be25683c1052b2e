// Package queue runs background jobs on asynq. The API enqueues, cmd/worker processes.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when enqueueing without a client.
var ErrNotConfigured = errors.New("queue: client not configured")

// Client is the subset of *asynq.Client used to publish tasks.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes tasks onto a named queue.
type Enqueuer struct {
	Client      Client
	Queue       string
	MaxAttempts int
	// Unique suppresses duplicates of the same type and payload for this long.
	Unique time.Duration
}

// Options returns the asynq options applied to every task.
func (e Enqueuer) Options() []asynq.Option {
	opts := []asynq.Option{asynq.Queue(e.queue())}
	if e.MaxAttempts > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxAttempts))
	}
	if e.Unique > 0 {
		opts = append(opts, asynq.Unique(e.Unique))
	}
	return opts
}

func (e Enqueuer) queue() string {
	if q := strings.TrimSpace(e.Queue); q != "" {
		return q
	}
	return "default"
}

// Enqueue publishes task. A duplicate of a task still pending is reported as queued=false
// without an error.
func (e Enqueuer) Enqueue(ctx context.Context, task *asynq.Task) (id string, queued bool, err error) {
	if e.Client == nil {
		return "", false, ErrNotConfigured
	}
	info, err := e.Client.EnqueueContext(ctx, task, e.Options()...)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		QueueEnqueuedTotal.WithLabelValues(task.Type(), "duplicate").Inc()
		return "", false, nil
	case err != nil:
		QueueEnqueuedTotal.WithLabelValues(task.Type(), "error").Inc()
		return "", false, err
	}
	QueueEnqueuedTotal.WithLabelValues(task.Type(), "queued").Inc()
	return info.ID, true, nil
}

// Instrument records outcome and duration of every processed task and logs failures.
func Instrument(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)
			QueueProcessingSeconds.WithLabelValues(task.Type()).Observe(time.Since(start).Seconds())
			status := "ok"
			if err != nil {
				status = "error"
				if errors.Is(err, asynq.SkipRetry) {
					status = "dropped"
				}
				logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
			}
			QueueProcessedTotal.WithLabelValues(task.Type(), status).Inc()
			return err
		})
	}
}

// NewServer builds an asynq server consuming the given queue.
func NewServer(redisURL, queueName string, concurrency int, logger zerolog.Logger) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Enqueuer{Queue: queueName}.queue(): 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", task.Type()).Msg("task will be retried")
		}),
	}), nil
}

// NewClient opens an asynq client on redisURL.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}
