package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RetryFailedWebhooks claims a batch of due failed webhook events and replays
// each stored payload and signature verbatim.
func (p *Pipeline) RetryFailedWebhooks(ctx context.Context, req RetryRequest) (result RetryResult, err error) {
	if err := p.ensureReady(); err != nil {
		return RetryResult{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		fields["retried"] = result.Retried
		fields["succeeded"] = result.Succeeded
		fields["still_failing"] = result.StillFailing
		fields["exhausted"] = result.Exhausted
		p.observeOperation(ctx, startedAt, "retry_failed_webhooks", err, fields)
	}()

	limit := req.BatchSize
	if limit <= 0 || limit > p.config.Retry.BatchSize {
		limit = p.config.Retry.BatchSize
	}
	wf := p.newWorkflow("retry_failed_webhooks", fields)

	batch, err := RunStep(ctx, wf, "claim-batch", func(ctx context.Context) ([]WebhookEvent, error) {
		return p.events.ClaimRetryBatch(ctx, p.clock(), limit, p.config.Retry.ClaimLease)
	})
	if err != nil {
		return RetryResult{}, p.mapError(fmt.Errorf("core: claim retry batch: %w", err))
	}
	if len(batch) == 0 {
		return RetryResult{}, nil
	}

	type retryOutcome struct {
		success   bool
		exhausted bool
	}
	outcomes := make([]retryOutcome, len(batch))
	var wg sync.WaitGroup
	for idx := range batch {
		wg.Add(1)
		go func(slot int, event WebhookEvent) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					p.logError(ctx, "webhook retry panicked", map[string]any{
						"webhook_event_id": event.ID,
						"error":            fmt.Sprint(recovered),
					})
				}
			}()
			success, exhausted := p.retryOne(ctx, event)
			outcomes[slot] = retryOutcome{success: success, exhausted: exhausted}
		}(idx, batch[idx])
	}
	wg.Wait()

	result.Retried = len(batch)
	for _, outcome := range outcomes {
		switch {
		case outcome.success:
			result.Succeeded++
		default:
			result.StillFailing++
			if outcome.exhausted {
				result.Exhausted++
			}
		}
	}
	return result, nil
}

func (p *Pipeline) retryOne(ctx context.Context, event WebhookEvent) (success bool, exhausted bool) {
	outcome := p.deliverer.Deliver(ctx, DeliveryRequest{
		TargetURL:  event.TargetURL,
		Body:       event.Payload,
		Event:      event.EventType,
		Signature:  event.Signature,
		DeliveryID: event.ID,
	})
	attemptedAt := p.clock()
	retryCount := event.RetryCount + 1
	attempt := WebhookAttempt{
		EventID:     event.ID,
		Outcome:     outcome,
		AttemptedAt: attemptedAt,
		RetryCount:  retryCount,
	}
	if !outcome.Success {
		if retryCount < event.MaxRetries {
			next := attemptedAt.Add(p.backoff.Next(event.RetryCount))
			attempt.NextRetryAt = &next
		} else {
			exhausted = true
		}
	}
	if _, err := p.events.RecordAttempt(ctx, attempt); err != nil {
		p.logError(ctx, "webhook retry outcome not recorded", map[string]any{
			"webhook_event_id": event.ID,
			"error":            err.Error(),
		})
	}
	fields := map[string]any{
		"webhook_event_id": event.ID,
		"site_id":          event.SiteID,
		"story_id":         event.StoryID,
		"retry_count":      retryCount,
		"http_status":      outcome.HTTPStatus,
	}
	if exhausted {
		p.logWarn(ctx, "webhook retries exhausted", fields)
	}
	return outcome.Success, exhausted
}
