package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-syndication/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const webhookResponseBodyLimit = 1000

// WebhookEventStore is the append-only audit trail of webhook deliveries.
// Rows are never deleted.
type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{db: db, repo: repo}, nil
}

func (s *WebhookEventStore) CreatePending(ctx context.Context, in core.NewWebhookEvent) (core.WebhookEvent, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if strings.TrimSpace(in.SiteID) == "" || strings.TrimSpace(in.StoryID) == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: site id and story id are required")
	}
	if err := in.EventType.Validate(); err != nil {
		return core.WebhookEvent{}, err
	}
	if in.MaxRetries < 0 {
		in.MaxRetries = 0
	}
	now := time.Now().UTC()
	record := &webhookEventRecord{
		ID:         uuid.NewString(),
		SiteID:     strings.TrimSpace(in.SiteID),
		StoryID:    strings.TrimSpace(in.StoryID),
		EventType:  string(in.EventType),
		TargetURL:  strings.TrimSpace(in.TargetURL),
		Payload:    string(in.Payload),
		Signature:  in.Signature,
		Status:     string(core.WebhookStatusPending),
		MaxRetries: in.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return webhookEventRecordToDomain(*created), nil
}

// RecordAttempt stores the outcome of one delivery attempt, first or retry.
func (s *WebhookEventStore) RecordAttempt(ctx context.Context, attempt core.WebhookAttempt) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	id := strings.TrimSpace(attempt.EventID)
	if id == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event id is required")
	}
	at := attempt.AttemptedAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	outcome := attempt.Outcome

	q := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("retry_count = ?", attempt.RetryCount).
		Set("http_status = ?", nullableStatus(outcome.HTTPStatus)).
		Set("response_body = ?", truncateRunes(outcome.ResponseBody, webhookResponseBodyLimit)).
		Set("error_message = ?", strings.TrimSpace(outcome.Error)).
		Set("sent_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id)
	if outcome.Success {
		q = q.Set("status = ?", string(core.WebhookStatusDelivered)).
			Set("delivered_at = ?", at).
			Set("next_retry_at = NULL")
	} else {
		q = q.Set("status = ?", string(core.WebhookStatusFailed)).
			Set("failed_at = ?", at).
			Set("next_retry_at = ?", cloneTimePointer(attempt.NextRetryAt))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.WebhookEvent{}, fmt.Errorf("%w: %s", core.ErrWebhookEventNotFound, id)
	}
	return s.Get(ctx, id)
}

// ClaimRetryBatch selects due failed events and moves their next_retry_at to
// now+lease in one statement, so a concurrent sweep cannot pick them up.
func (s *WebhookEventStore) ClaimRetryBatch(
	ctx context.Context,
	now time.Time,
	limit int,
	lease time.Duration,
) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	now = now.UTC()
	claimedUntil := now.Add(lease)
	var records []webhookEventRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM syndication_webhook_events
	WHERE status = ?
	  AND retry_count < max_retries
	  AND next_retry_at IS NOT NULL
	  AND next_retry_at <= ?
	ORDER BY next_retry_at ASC, id ASC
	LIMIT ?
)
UPDATE syndication_webhook_events
SET next_retry_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	site_id,
	story_id,
	event_type,
	target_url,
	payload,
	signature,
	status,
	http_status,
	response_body,
	error_message,
	retry_count,
	max_retries,
	next_retry_at,
	sent_at,
	delivered_at,
	failed_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.WebhookStatusFailed),
			now,
			limit,
			claimedUntil,
			now,
			string(core.WebhookStatusFailed),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		events = append(events, webhookEventRecordToDomain(record))
	}
	return events, nil
}

func (s *WebhookEventStore) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	record := new(webhookEventRecord)
	err := s.db.NewSelect().Model(record).Where("id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookEvent{}, fmt.Errorf("%w: %s", core.ErrWebhookEventNotFound, id)
		}
		return core.WebhookEvent{}, err
	}
	return webhookEventRecordToDomain(*record), nil
}

func (s *WebhookEventStore) ListByStory(ctx context.Context, storyID string) ([]core.WebhookEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return nil, fmt.Errorf("sqlstore: story id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("story_id", "=", storyID),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("site_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		out = append(out, webhookEventRecordToDomain(*record))
	}
	return out, nil
}

func webhookEventRecordToDomain(record webhookEventRecord) core.WebhookEvent {
	event := core.WebhookEvent{
		ID:           record.ID,
		SiteID:       record.SiteID,
		StoryID:      record.StoryID,
		EventType:    core.EventType(record.EventType),
		TargetURL:    record.TargetURL,
		Payload:      []byte(record.Payload),
		Signature:    record.Signature,
		Status:       core.WebhookStatus(record.Status),
		ResponseBody: record.ResponseBody,
		ErrorMessage: record.ErrorMessage,
		RetryCount:   record.RetryCount,
		MaxRetries:   record.MaxRetries,
		NextRetryAt:  cloneTimePointer(record.NextRetryAt),
		SentAt:       cloneTimePointer(record.SentAt),
		DeliveredAt:  cloneTimePointer(record.DeliveredAt),
		FailedAt:     cloneTimePointer(record.FailedAt),
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
	if record.HTTPStatus != nil {
		event.HTTPStatus = *record.HTTPStatus
	}
	return event
}

func nullableStatus(status int) *int {
	if status <= 0 {
		return nil
	}
	return &status
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	count := 0
	for idx := range value {
		if count == limit {
			return value[:idx]
		}
		count++
	}
	return value
}
