package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-syndication/adapters/gojob"
	"github.com/goliatone/go-syndication/core"
)

const (
	DefaultPollInterval = time.Second
	DefaultBaseDelay    = 30 * time.Second
	DefaultMaxDelay     = 30 * time.Minute
	DefaultMaxAttempts  = 8
)

// Handler executes a dequeued job message.
type Handler interface {
	Handle(ctx context.Context, msg *core.JobExecutionMessage) error
}

type RunnerConfig struct {
	PollInterval time.Duration
	// MaxAttempts is the delivery count at which a failing job is
	// dead-lettered instead of requeued.
	MaxAttempts int
	Backoff     worker.BackoffConfig
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff.Strategy == "" {
		c.Backoff.Strategy = worker.BackoffExponential
	}
	if c.Backoff.Interval <= 0 {
		c.Backoff.Interval = DefaultBaseDelay
	}
	if c.Backoff.MaxInterval <= 0 {
		c.Backoff.MaxInterval = DefaultMaxDelay
	}
	if c.Backoff.MaxInterval < c.Backoff.Interval {
		c.Backoff.MaxInterval = c.Backoff.Interval
	}
	return c
}

// RetryPolicy is the go-job policy the runner nacks failed jobs with.
func (c RunnerConfig) RetryPolicy() worker.DefaultRetryPolicy {
	c = c.withDefaults()
	return worker.DefaultRetryPolicy{MaxAttempts: c.MaxAttempts, Backoff: c.Backoff}
}

type RunnerOption func(*Runner)

// WithRunnerHooks adds go-job worker hooks notified on every job phase.
func WithRunnerHooks(hooks ...worker.Hook) RunnerOption {
	return func(r *Runner) {
		for _, hook := range hooks {
			if hook != nil {
				r.hooks = append(r.hooks, hook)
			}
		}
	}
}

func WithRunnerRetryPolicy(policy worker.RetryPolicy) RunnerOption {
	return func(r *Runner) {
		if policy != nil {
			r.policy = policy
		}
	}
}

func WithRunnerLogger(logger core.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner drains a job queue one message at a time. Retry decisions and
// lifecycle hooks use the go-job worker contracts so the same policy and
// hooks serve a go-job worker.
type Runner struct {
	dequeuer core.JobDequeuer
	handler  Handler
	config   RunnerConfig
	policy   worker.RetryPolicy
	hooks    []worker.Hook
	logger   core.Logger
	now      func() time.Time
}

type attemptReporter interface {
	Attempt() int
}

func NewRunner(dequeuer core.JobDequeuer, handler Handler, cfg RunnerConfig, opts ...RunnerOption) (*Runner, error) {
	if dequeuer == nil {
		return nil, jobsInternal("jobs: dequeuer is required")
	}
	if handler == nil {
		return nil, jobsInternal("jobs: handler is required")
	}
	r := &Runner{
		dequeuer: dequeuer,
		handler:  handler,
		config:   cfg.withDefaults(),
		now:      time.Now,
	}
	r.policy = r.config.RetryPolicy()
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = glog.Ensure(r.logger)
	return r, nil
}

// RunOnce processes at most one job. It reports false when the queue had
// nothing due.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	if r == nil {
		return false, jobsInternal("jobs: runner is nil")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNoJobAvailable) {
			return false, nil
		}
		return false, fmt.Errorf("jobs: dequeue: %w", err)
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	attempt := 1
	if reporter, ok := delivery.(attemptReporter); ok && reporter.Attempt() > 0 {
		attempt = reporter.Attempt()
	}
	startedAt := r.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	r.notify(ctx, "start", event)

	handleErr := r.handle(ctx, msg)
	event.Duration = r.now().Sub(startedAt)

	if handleErr == nil {
		if err := delivery.Ack(ctx); err != nil {
			return true, fmt.Errorf("jobs: ack %s: %w", jobIDOf(msg), err)
		}
		r.notify(ctx, "success", event)
		return true, nil
	}

	event.Err = handleErr
	opts := gojob.FromNackOptions(r.policy.Decide(attempt, handleErr))
	if opts.Reason == "" {
		opts.Reason = handleErr.Error()
	}
	if opts.Requeue {
		event.Delay = opts.Delay
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return true, errors.Join(handleErr, fmt.Errorf("jobs: nack %s: %w", jobIDOf(msg), err))
	}
	if opts.DeadLetter {
		r.notify(ctx, "failure", event)
	} else {
		r.notify(ctx, "retry", event)
	}
	return true, nil
}

// Run polls until ctx is cancelled, sleeping PollInterval whenever the queue
// is idle. Dequeue errors are logged and polled past.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return jobsInternal("jobs: runner is nil")
	}
	r.logger.Info("job runner started", "poll_interval", r.config.PollInterval.String())
	for {
		if ctx.Err() != nil {
			r.logger.Info("job runner stopped")
			return nil
		}
		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("job runner iteration failed", "error", err.Error())
		}
		if processed && err == nil {
			continue
		}
		timer := time.NewTimer(r.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("job runner stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg *core.JobExecutionMessage) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("jobs: handler panic for %s: %v", jobIDOf(msg), recovered)
		}
	}()
	return r.handler.Handle(ctx, msg)
}

func (r *Runner) notify(ctx context.Context, phase string, event core.JobWorkerEvent) {
	if len(r.hooks) == 0 {
		return
	}
	workerEvent := gojob.ToWorkerEvent(event)
	for _, hook := range r.hooks {
		switch phase {
		case "start":
			hook.OnStart(ctx, workerEvent)
		case "success":
			hook.OnSuccess(ctx, workerEvent)
		case "retry":
			hook.OnRetry(ctx, workerEvent)
		case "failure":
			hook.OnFailure(ctx, workerEvent)
		}
	}
}

func jobIDOf(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return "<nil>"
	}
	return msg.JobID
}
