package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// PayloadSigner produces the signature sent alongside a canonical payload.
type PayloadSigner interface {
	Sign(ctx context.Context, siteID string, body []byte) (string, error)
}

// WebhookDeliverer performs one outbound attempt. Failures are reported in the
// outcome, never as panics or errors.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, req DeliveryRequest) DeliveryOutcome
}

type RemovalProber interface {
	Probe(ctx context.Context, url string) ProbeOutcome
}

type DistributionQuery struct {
	StoryID  string
	SiteIDs  []string
	Statuses []DistributionStatus
}

type VerificationUpdate struct {
	DistributionID     string
	Status             DistributionStatus
	VerificationStatus VerificationStatus
	VerifiedAt         time.Time
}

type DistributionStore interface {
	List(ctx context.Context, query DistributionQuery) ([]Distribution, error)
	// Transition applies a guarded status change. It returns false when the
	// row was not in a status from which next is reachable.
	Transition(ctx context.Context, distributionID string, next DistributionStatus, at time.Time) (bool, error)
	ApplyVerification(ctx context.Context, update VerificationUpdate) error
}

type SiteRegistry interface {
	GetSites(ctx context.Context, siteIDs []string) (map[string]Site, error)
}

type NewWebhookEvent struct {
	SiteID     string
	StoryID    string
	EventType  EventType
	TargetURL  string
	Payload    []byte
	Signature  string
	MaxRetries int
}

type WebhookAttempt struct {
	EventID     string
	Outcome     DeliveryOutcome
	AttemptedAt time.Time
	RetryCount  int
	NextRetryAt *time.Time
}

type WebhookEventStore interface {
	CreatePending(ctx context.Context, event NewWebhookEvent) (WebhookEvent, error)
	RecordAttempt(ctx context.Context, attempt WebhookAttempt) (WebhookEvent, error)
	// ClaimRetryBatch atomically selects due failed events and pushes their
	// next_retry_at forward by lease so overlapping sweeps skip them.
	ClaimRetryBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookEvent, error)
	Get(ctx context.Context, id string) (WebhookEvent, error)
	ListByStory(ctx context.Context, storyID string) ([]WebhookEvent, error)
}

type AlertPublisher interface {
	PublishComplianceAlert(ctx context.Context, alert ComplianceAlert) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

// JobScheduler enqueues a job that must not be delivered before runAt.
type JobScheduler interface {
	Schedule(ctx context.Context, msg *JobExecutionMessage, runAt time.Time) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// ErrNoJobAvailable is returned by a non-blocking dequeuer when nothing is due.
var ErrNoJobAvailable = errors.New("core: no job available")

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
