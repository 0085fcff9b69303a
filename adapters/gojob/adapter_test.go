package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-syndication/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDRevokeContent,
		ScriptPath:     "syndication/syndication.content.revoked",
		Parameters:     map[string]any{"storyId": "story-1"},
		IdempotencyKey: "revoke:story-1",
		DedupPolicy:    "drop",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != original.ScriptPath {
		t.Fatalf("expected script path %q, got %q", original.ScriptPath, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["storyId"] != "story-1" {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          JobIDRetryWebhooks,
		ScriptPath:     "syndication/syndication.webhooks.retry",
		Parameters:     map[string]any{"batchSize": 50},
		IdempotencyKey: "retry:2026-03-14T12:00:00.000Z",
		DedupPolicy:    "drop",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDRetryWebhooks {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer)
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != JobIDRetryWebhooks {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackDispositionMapping(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID:      JobIDVerifyRemoval,
			ScriptPath: "syndication/syndication.verify_removal",
		},
	}
	adapter := NewDeliveryAdapter(rawDelivery)

	if err := adapter.Nack(ctx, core.JobNackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "}); err != nil {
		t.Fatalf("nack retry: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionRetry || rawDelivery.nackOpts.Delay != 30*time.Second {
		t.Fatalf("expected retry after 30s, got %#v", rawDelivery.nackOpts)
	}
	if rawDelivery.nackOpts.Reason != "transient" {
		t.Fatalf("expected trimmed reason, got %q", rawDelivery.nackOpts.Reason)
	}

	if err := adapter.Nack(ctx, core.JobNackOptions{Delay: time.Second, DeadLetter: true, Reason: "bad params"}); err != nil {
		t.Fatalf("nack dead letter: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionDeadLetter || rawDelivery.nackOpts.Delay != 0 {
		t.Fatalf("expected dead letter without delay, got %#v", rawDelivery.nackOpts)
	}

	for _, disposition := range []queue.NackDisposition{
		queue.NackDispositionDeadLetter,
		queue.NackDispositionFailed,
		queue.NackDispositionCanceled,
	} {
		got := FromNackOptions(queue.NackOptions{Disposition: disposition, Delay: time.Minute})
		if !got.DeadLetter || got.Requeue || got.Delay != 0 {
			t.Fatalf("%s: expected dead letter, got %#v", disposition, got)
		}
	}
	retry := FromNackOptions(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: -time.Second})
	if !retry.Requeue || retry.DeadLetter || retry.Delay != 0 {
		t.Fatalf("expected clamped retry, got %#v", retry)
	}
}

func TestRetryPolicyDecisionsMapToNackOptions(t *testing.T) {
	policy := worker.DefaultRetryPolicy{
		MaxAttempts: 3,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    10 * time.Second,
			MaxInterval: 15 * time.Second,
		},
	}
	cause := errors.New("partner timeout")
	if got := FromNackOptions(policy.Decide(1, cause)); !got.Requeue || got.Delay != 10*time.Second {
		t.Fatalf("attempt 1: expected retry after 10s, got %#v", got)
	}
	if got := FromNackOptions(policy.Decide(2, cause)); !got.Requeue || got.Delay != 15*time.Second {
		t.Fatalf("attempt 2: expected capped retry after 15s, got %#v", got)
	}
	if got := FromNackOptions(policy.Decide(3, cause)); !got.DeadLetter || got.Reason != "partner timeout" {
		t.Fatalf("attempt 3: expected dead letter, got %#v", got)
	}
	terminal := job.NewTerminalError(job.TerminalErrorCodeStaleStateMismatch, "story already purged", cause)
	if got := FromNackOptions(policy.Decide(1, terminal)); !got.DeadLetter || got.Reason != "story already purged" {
		t.Fatalf("expected non-retryable error to dead letter, got %#v", got)
	}
}

func TestDeliveryAdapterReportsAttempt(t *testing.T) {
	counted := NewDeliveryAdapter(&countingQueueDelivery{
		stubQueueDelivery: stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDVerifyRemoval}},
		attempt:           5,
	})
	if counted.Attempt() != 5 {
		t.Fatalf("expected attempt 5, got %d", counted.Attempt())
	}
	plain := NewDeliveryAdapter(&stubQueueDelivery{})
	if plain.Attempt() != 0 {
		t.Fatalf("expected attempt 0 for deliveries without a counter")
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	evt := worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDNotifySites,
			ScriptPath:     "syndication/syndication.notify",
			IdempotencyKey: "notify:story-1",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if coreHook.last.Message == nil {
		t.Fatalf("expected worker message mapping")
	}
	if coreHook.last.Message.JobID != JobIDNotifySites {
		t.Fatalf("expected job id mapping, got %q", coreHook.last.Message.JobID)
	}
	if coreHook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", coreHook.last.Attempt)
	}
	if coreHook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", coreHook.last.Delay)
	}
	if coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if coreHook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}

	back := ToWorkerEvent(coreHook.last)
	if back.Message == nil || back.Message.IdempotencyKey != "notify:story-1" || back.Attempt != 2 || back.Delay != 5*time.Second {
		t.Fatalf("expected event to map back to the worker shape, got %#v", back)
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1", EnqueuedAt: time.Now().UTC()}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type countingQueueDelivery struct {
	stubQueueDelivery
	attempt int
}

func (s *countingQueueDelivery) Attempt() int {
	return s.attempt
}

type capturingHook struct {
	last core.JobWorkerEvent
}

func (h *capturingHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (h *capturingHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.last = event
}
