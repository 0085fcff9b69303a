package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-syndication/command"
	"github.com/goliatone/go-syndication/core"
)

// Triggers turn inbound events into durable jobs. Each request is validated
// before it is enqueued so a malformed event is rejected to its sender rather
// than dead-lettered later.
type Triggers struct {
	enqueuer          core.JobEnqueuer
	scheduler         core.JobScheduler
	verificationDelay time.Duration
	now               func() time.Time
}

type TriggerOption func(*Triggers)

// WithVerificationDelay sets how long after the revocation a triggered
// verification pass becomes due.
func WithVerificationDelay(delay time.Duration) TriggerOption {
	return func(t *Triggers) {
		if delay >= 0 {
			t.verificationDelay = delay
		}
	}
}

func WithTriggerClock(now func() time.Time) TriggerOption {
	return func(t *Triggers) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTriggers(enqueuer core.JobEnqueuer, scheduler core.JobScheduler, opts ...TriggerOption) (*Triggers, error) {
	if enqueuer == nil {
		return nil, jobsInternal("jobs: trigger enqueuer is required")
	}
	if scheduler == nil {
		return nil, jobsInternal("jobs: trigger scheduler is required")
	}
	t := &Triggers{
		enqueuer:          enqueuer,
		scheduler:         scheduler,
		verificationDelay: core.DefaultConfig().Verification.Delay,
		now:               time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// ContentRevoked enqueues a revocation. A non-empty eventID becomes the
// idempotency key, so a redelivered event is dropped by the queue.
func (t *Triggers) ContentRevoked(ctx context.Context, req core.RevokeRequest, eventID string) (*core.JobExecutionMessage, error) {
	if err := (command.RevokeContentMessage{Request: req}).Validate(); err != nil {
		return nil, err
	}
	msg := core.NewRevokeJobMessage(req, eventKey("revoke", eventID))
	return msg, t.enqueue(ctx, msg)
}

// VerifyRemoval schedules a verification pass keyed by story and revocation
// time. It runs no earlier than the revocation plus the verification delay,
// or immediately when that moment has passed.
func (t *Triggers) VerifyRemoval(ctx context.Context, req core.VerifyRequest) (*core.JobExecutionMessage, error) {
	if err := (command.VerifyRemovalMessage{Request: req}).Validate(); err != nil {
		return nil, err
	}
	if t == nil || t.scheduler == nil {
		return nil, jobsInternal("jobs: triggers are not configured")
	}
	msg := core.NewVerifyJobMessage(req)
	return msg, t.scheduler.Schedule(ctx, msg, t.VerificationRunAt(req.RevocationTimestamp))
}

// VerificationRunAt is max(now, revokedAt + verification delay).
func (t *Triggers) VerificationRunAt(revokedAt time.Time) time.Time {
	now := t.now().UTC()
	runAt := revokedAt.UTC().Add(t.verificationDelay)
	if runAt.Before(now) {
		return now
	}
	return runAt
}

func (t *Triggers) Notify(ctx context.Context, req core.NotifyRequest, eventID string) (*core.JobExecutionMessage, error) {
	if err := (command.NotifySitesMessage{Request: req}).Validate(); err != nil {
		return nil, err
	}
	msg := core.NewNotifyJobMessage(req, eventKey("notify", eventID))
	return msg, t.enqueue(ctx, msg)
}

// RetrySweep enqueues an out-of-schedule sweep keyed by at.
func (t *Triggers) RetrySweep(ctx context.Context, req core.RetryRequest, at time.Time) (*core.JobExecutionMessage, error) {
	if err := (command.RetryFailedWebhooksMessage{Request: req}).Validate(); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	msg := core.NewRetryJobMessage(at.UTC(), req.BatchSize)
	return msg, t.enqueue(ctx, msg)
}

func (t *Triggers) enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if t == nil || t.enqueuer == nil {
		return jobsInternal("jobs: triggers are not configured")
	}
	return t.enqueuer.Enqueue(ctx, msg)
}

func eventKey(prefix string, eventID string) string {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ""
	}
	return prefix + ":" + eventID
}
