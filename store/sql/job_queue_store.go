package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-syndication/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	jobStatusPending    = "pending"
	jobStatusProcessing = "processing"
	jobStatusCompleted  = "completed"
	jobStatusDead       = "dead"

	defaultJobLease = 5 * time.Minute
)

// JobQueueStore is a durable go-job queue over syndication_jobs. Delayed
// messages wait in available_at, so scheduled continuations survive restarts.
// A message with an idempotency key is stored at most once.
type JobQueueStore struct {
	db    *bun.DB
	repo  repository.Repository[*jobRecord]
	lease time.Duration
	now   func() time.Time
}

type JobQueueOption func(*JobQueueStore)

// WithJobLease sets how long a dequeued job stays invisible before another
// worker may reclaim it.
func WithJobLease(lease time.Duration) JobQueueOption {
	return func(s *JobQueueStore) {
		if lease > 0 {
			s.lease = lease
		}
	}
}

func WithJobClock(now func() time.Time) JobQueueOption {
	return func(s *JobQueueStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewJobQueueStore(db *bun.DB, opts ...JobQueueOption) (*JobQueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	store := &JobQueueStore{db: db, repo: repo, lease: defaultJobLease, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *JobQueueStore) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	return s.EnqueueAt(ctx, msg, time.Time{})
}

func (s *JobQueueStore) EnqueueAfter(ctx context.Context, msg *job.ExecutionMessage, delay time.Duration) (queue.EnqueueReceipt, error) {
	if delay < 0 {
		delay = 0
	}
	return s.EnqueueAt(ctx, msg, s.clock().Add(delay))
}

// EnqueueAt stores msg so that it is not dequeued before runAt. A keyed
// message that is already stored keeps its original row and receipt.
func (s *JobQueueStore) EnqueueAt(ctx context.Context, msg *job.ExecutionMessage, runAt time.Time) (queue.EnqueueReceipt, error) {
	if s == nil || s.db == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: job queue store is not configured")
	}
	if msg == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: execution message is required")
	}
	jobID := strings.TrimSpace(msg.JobID)
	if jobID == "" {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: job id is required")
	}
	now := s.clock()
	availableAt := runAt.UTC()
	if availableAt.IsZero() || availableAt.Before(now) {
		availableAt = now
	}
	record := &jobRecord{
		ID:          uuid.NewString(),
		JobID:       jobID,
		ScriptPath:  strings.TrimSpace(msg.ScriptPath),
		Parameters:  copyAnyMap(msg.Parameters),
		DedupPolicy: strings.TrimSpace(string(msg.DedupPolicy)),
		Status:      jobStatusPending,
		AvailableAt: availableAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	receipt := queue.EnqueueReceipt{DispatchID: record.ID, EnqueuedAt: now}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		record.IdempotencyKey = &key
		res, err := s.db.NewInsert().
			Model(record).
			On("CONFLICT (idempotency_key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return queue.EnqueueReceipt{}, err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return s.receiptForKey(ctx, key)
		}
		return receipt, nil
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return receipt, nil
}

func (s *JobQueueStore) receiptForKey(ctx context.Context, key string) (queue.EnqueueReceipt, error) {
	var existing jobRecord
	err := s.db.NewSelect().
		Model(&existing).
		Where("idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return queue.EnqueueReceipt{DispatchID: existing.ID, EnqueuedAt: existing.CreatedAt.UTC()}, nil
}

// Schedule adapts the queue to the pipeline's delayed continuation contract.
func (s *JobQueueStore) Schedule(ctx context.Context, msg *core.JobExecutionMessage, runAt time.Time) error {
	if msg == nil {
		return fmt.Errorf("sqlstore: execution message is required")
	}
	_, err := s.EnqueueAt(ctx, &job.ExecutionMessage{
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    job.DeduplicationPolicy(msg.DedupPolicy),
	}, runAt)
	return err
}

// Dequeue claims the oldest due job, or a processing job whose lease has
// expired. It does not block; core.ErrNoJobAvailable signals an idle queue.
func (s *JobQueueStore) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job queue store is not configured")
	}
	now := s.clock()
	leaseUntil := now.Add(s.lease)
	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM syndication_jobs
	WHERE (status = ? AND available_at <= ?)
	   OR (status = ? AND lease_until <= ?)
	ORDER BY available_at ASC, created_at ASC
	LIMIT 1
)
UPDATE syndication_jobs
SET status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND (status = ? OR (status = ? AND lease_until <= ?))
RETURNING
	id,
	job_id,
	script_path,
	parameters,
	idempotency_key,
	dedup_policy,
	status,
	attempts,
	available_at,
	lease_until,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			jobStatusPending,
			now,
			jobStatusProcessing,
			now,
			jobStatusProcessing,
			leaseUntil,
			now,
			jobStatusPending,
			jobStatusProcessing,
			now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrNoJobAvailable
	}
	return &jobDelivery{store: s, record: records[0]}, nil
}

// Pending reports queued and in-flight jobs, oldest first.
func (s *JobQueueStore) Pending(ctx context.Context, limit int) ([]JobSummary, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: job queue store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status IN (?)", bun.In([]string{jobStatusPending, jobStatusProcessing}))
		}),
		repository.OrderBy("available_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]JobSummary, 0, len(records))
	for _, record := range records {
		out = append(out, jobRecordToSummary(*record))
	}
	return out, nil
}

type JobSummary struct {
	ID             string
	JobID          string
	IdempotencyKey string
	Status         string
	Attempts       int
	AvailableAt    time.Time
	LastError      string
}

func (s *JobQueueStore) ack(ctx context.Context, id string) error {
	now := s.clock()
	_, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", jobStatusCompleted).
		Set("lease_until = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing).
		Exec(ctx)
	return err
}

func (s *JobQueueStore) nack(ctx context.Context, id string, opts queue.NackOptions) error {
	now := s.clock()
	q := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("lease_until = NULL").
		Set("last_error = ?", strings.TrimSpace(opts.Reason)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing)
	if opts.Disposition == queue.NackDispositionRetry {
		delay := opts.Delay
		if delay < 0 {
			delay = 0
		}
		q = q.Set("status = ?", jobStatusPending).Set("available_at = ?", now.Add(delay))
	} else {
		q = q.Set("status = ?", jobStatusDead)
	}
	_, err := q.Exec(ctx)
	return err
}

func (s *JobQueueStore) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

var _ queue.ScheduledEnqueuer = (*JobQueueStore)(nil)

type jobDelivery struct {
	store  *JobQueueStore
	record jobRecord
}

func (d *jobDelivery) Message() *job.ExecutionMessage {
	if d == nil {
		return nil
	}
	msg := &job.ExecutionMessage{
		JobID:       d.record.JobID,
		ScriptPath:  d.record.ScriptPath,
		Parameters:  copyAnyMap(d.record.Parameters),
		DedupPolicy: job.DeduplicationPolicy(d.record.DedupPolicy),
	}
	if d.record.IdempotencyKey != nil {
		msg.IdempotencyKey = *d.record.IdempotencyKey
	}
	return msg
}

// Attempt is the 1-based delivery count for this job.
func (d *jobDelivery) Attempt() int {
	if d == nil {
		return 0
	}
	return d.record.Attempts
}

func (d *jobDelivery) Ack(ctx context.Context) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("sqlstore: job delivery is not configured")
	}
	return d.store.ack(ctx, d.record.ID)
}

func (d *jobDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("sqlstore: job delivery is not configured")
	}
	return d.store.nack(ctx, d.record.ID, opts)
}

func jobRecordToSummary(record jobRecord) JobSummary {
	summary := JobSummary{
		ID:          record.ID,
		JobID:       record.JobID,
		Status:      record.Status,
		Attempts:    record.Attempts,
		AvailableAt: record.AvailableAt.UTC(),
		LastError:   record.LastError,
	}
	if record.IdempotencyKey != nil {
		summary.IdempotencyKey = *record.IdempotencyKey
	}
	return summary
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
