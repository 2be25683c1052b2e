package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/bundlehub/internal/obs"
)

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// PollResult is how a poll task ended.
type PollResult string

const (
	PollRunning   PollResult = ""
	PollVerified  PollResult = "verified"
	PollExhausted PollResult = "exhausted"
	PollCancelled PollResult = "cancelled"
)

// PollConfig bounds a poll task.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	NewTicker   TickerFactory
	Logger      zerolog.Logger
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	if c.NewTicker == nil {
		c.NewTicker = NewRealTicker
	}
	return c
}

// CheckFunc runs one poll. done=true stops the task as verified; an error is logged and polling continues.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// PollTask is one running poll loop.
type PollTask struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result PollResult
}

var pollAttempts, _ = otel.Meter("bundlehub/payment").Int64Counter(
	"payment.poll.attempts",
	metric.WithDescription("Direct charge verification polls."),
)

func startPoll(parent context.Context, id string, cfg PollConfig, check CheckFunc, onFinish func(context.Context, PollResult)) *PollTask {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	t := &PollTask{id: id, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		ticker := cfg.NewTicker(cfg.Interval)
		defer ticker.Stop()

		result := t.loop(ctx, cfg, ticker, check)
		t.mu.Lock()
		t.result = result
		t.mu.Unlock()
		if onFinish != nil {
			onFinish(context.WithoutCancel(ctx), result)
		}
	}()
	return t
}

func (t *PollTask) loop(ctx context.Context, cfg PollConfig, ticker Ticker, check CheckFunc) PollResult {
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return PollCancelled
		case <-ticker.C():
		}
		done, err := check(ctx, attempt)
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return PollCancelled
		case err != nil:
			cfg.Logger.Warn().Err(err).Str("attempt_id", t.id).Int("poll", attempt).Msg("payment poll failed")
			recordPoll(ctx, "error")
		case done:
			recordPoll(ctx, "verified")
			return PollVerified
		default:
			recordPoll(ctx, "pending")
		}
		if attempt >= cfg.MaxAttempts {
			return PollExhausted
		}
	}
}

func recordPoll(ctx context.Context, result string) {
	obs.IncCounter(obs.PaymentPollsTotal, result)
	if pollAttempts != nil {
		pollAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// ID returns the attempt id the task polls for.
func (t *PollTask) ID() string { return t.id }

// Cancel stops the task. It is safe to call more than once.
func (t *PollTask) Cancel() { t.cancel() }

// Done is closed once the task has stopped and its finish hook has run.
func (t *PollTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task stops and returns its result.
func (t *PollTask) Wait() PollResult {
	<-t.done
	return t.Result()
}

// Result returns the final result, or PollRunning while the task is active.
func (t *PollTask) Result() PollResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Registry tracks running poll tasks so they can be cancelled individually or at shutdown.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*PollTask
	closed bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*PollTask)}
}

// ErrRegistryClosed is returned when starting a task after Shutdown.
var ErrRegistryClosed = errors.New("payment: poll registry closed")

// Start launches a poll task for id, replacing any task already registered under it.
func (r *Registry) Start(parent context.Context, id string, cfg PollConfig, check CheckFunc, onFinish func(context.Context, PollResult)) (*PollTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if prev, ok := r.tasks[id]; ok {
		prev.Cancel()
	}
	var task *PollTask
	task = startPoll(parent, id, cfg, check, func(ctx context.Context, res PollResult) {
		if onFinish != nil {
			onFinish(ctx, res)
		}
		r.mu.Lock()
		if r.tasks[id] == task {
			delete(r.tasks, id)
		}
		r.mu.Unlock()
	})
	r.tasks[id] = task
	return task, nil
}

// Get returns the running task for id.
func (r *Registry) Get(id string) (*PollTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Cancel stops the task for id and reports whether one was running.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if ok {
		t.Cancel()
	}
	return ok
}

// Len reports the number of running tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Shutdown cancels every task and waits for them to stop or ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	tasks := make([]*PollTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
