package gojob

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-syndication/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDRevokeContent = core.JobIDRevokeContent
	JobIDVerifyRemoval = core.JobIDVerifyRemoval
	JobIDRetryWebhooks = core.JobIDRetryWebhooks
	JobIDNotifySites   = core.JobIDNotifySites
)

// attemptReporter is implemented by queue deliveries that track how many
// times the message has been handed out.
type attemptReporter interface {
	Attempt() int
}

// ToExecutionMessage maps a syndication job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the syndication contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps syndication nack options to a go-job disposition. A
// nack that neither requeues nor dead-letters is treated as a retry.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       opts.Delay,
		Reason:      strings.TrimSpace(opts.Reason),
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if opts.DeadLetter {
		out.Disposition = queue.NackDispositionDeadLetter
		out.Delay = 0
	}
	return out
}

// FromNackOptions maps a go-job retry decision into syndication nack
// options. Every terminal disposition dead-letters the job.
func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	out := core.JobNackOptions{Reason: strings.TrimSpace(opts.Reason)}
	switch opts.Disposition {
	case queue.NackDispositionRetry, "":
		out.Requeue = true
		out.Delay = opts.Delay
		if out.Delay < 0 {
			out.Delay = 0
		}
	default:
		out.DeadLetter = true
	}
	return out
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

type DeliveryAdapter struct {
	delivery queue.Delivery
}

func NewDeliveryAdapter(delivery queue.Delivery) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

// Attempt reports the underlying delivery count, or 0 when the queue does not
// track attempts.
func (d *DeliveryAdapter) Attempt() int {
	if d == nil || d.delivery == nil {
		return 0
	}
	if reporter, ok := d.delivery.(attemptReporter); ok {
		return reporter.Attempt()
	}
	return 0
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, ToNackOptions(opts))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery), nil
}

type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// ToWorkerEvent maps a syndication job event into the go-job worker shape.
func ToWorkerEvent(event core.JobWorkerEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
