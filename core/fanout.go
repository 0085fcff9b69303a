package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type deliveryTarget struct {
	siteID         string
	distributionID string
	site           *Site
}

type siteDelivery struct {
	result SiteDeliveryResult
	// attempted is true once the pending record exists and an HTTP attempt
	// was made.
	attempted bool
	// settled is true when the outcome is final for this run, either from an
	// attempt or because the site can never be delivered to.
	settled bool
}

// deliverAll fans out one signed event per target concurrently. Results keep
// the order of targets; a failure or panic in one slot never touches another.
func (p *Pipeline) deliverAll(
	ctx context.Context,
	wf *Workflow,
	event EventType,
	storyID string,
	targets []deliveryTarget,
	data map[string]any,
	at time.Time,
) []siteDelivery {
	out := make([]siteDelivery, len(targets))
	var wg sync.WaitGroup
	for idx := range targets {
		wg.Add(1)
		go func(slot int, target deliveryTarget) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					out[slot] = siteDelivery{
						result: SiteDeliveryResult{
							SiteID: target.siteID,
							Error:  fmt.Sprintf("delivery panicked: %v", recovered),
						},
						settled: true,
					}
				}
			}()
			delivery, err := RunStep(ctx, wf, "send-webhook", func(ctx context.Context) (siteDelivery, error) {
				delivery := p.deliverOne(ctx, event, storyID, target, data, at)
				if !delivery.result.Success {
					return delivery, fmt.Errorf("site %s: %s", target.siteID, delivery.result.Error)
				}
				return delivery, nil
			})
			if err != nil && delivery.result.SiteID == "" {
				delivery.result = SiteDeliveryResult{SiteID: target.siteID, Error: err.Error()}
			}
			out[slot] = delivery
		}(idx, targets[idx])
	}
	wg.Wait()
	return out
}

func (p *Pipeline) deliverOne(
	ctx context.Context,
	event EventType,
	storyID string,
	target deliveryTarget,
	data map[string]any,
	at time.Time,
) siteDelivery {
	result := SiteDeliveryResult{SiteID: target.siteID}
	if target.site == nil {
		result.Error = "site not registered"
		return siteDelivery{result: result, settled: true}
	}
	site := *target.site
	result.SiteName = site.Name
	if !site.Deliverable() {
		if site.Status == SiteStatusInactive {
			result.Error = "site is inactive"
		} else {
			result.Error = "site has no webhook URL configured"
		}
		return siteDelivery{result: result, settled: true}
	}

	body, err := NewWebhookPayload(event, storyID, site.ID, at, data).Canonical()
	if err != nil {
		result.Error = err.Error()
		return siteDelivery{result: result}
	}
	signature, err := p.signer.Sign(ctx, site.ID, body)
	if err != nil {
		result.Error = fmt.Sprintf("sign payload: %v", err)
		return siteDelivery{result: result}
	}

	maxRetries := p.config.Retry.MaxRetries
	record, err := p.events.CreatePending(ctx, NewWebhookEvent{
		SiteID:     site.ID,
		StoryID:    storyID,
		EventType:  event,
		TargetURL:  site.WebhookURL,
		Payload:    body,
		Signature:  signature,
		MaxRetries: maxRetries,
	})
	if err != nil {
		result.Error = fmt.Sprintf("log webhook event: %v", err)
		return siteDelivery{result: result}
	}
	result.WebhookEventID = record.ID

	outcome := p.deliverer.Deliver(ctx, DeliveryRequest{
		TargetURL:  site.WebhookURL,
		Body:       body,
		Event:      event,
		Signature:  signature,
		DeliveryID: record.ID,
	})
	attemptedAt := p.clock()
	attempt := WebhookAttempt{
		EventID:     record.ID,
		Outcome:     outcome,
		AttemptedAt: attemptedAt,
	}
	if !outcome.Success && maxRetries > 0 {
		next := attemptedAt.Add(p.backoff.Initial())
		attempt.NextRetryAt = &next
	}
	if _, err := p.events.RecordAttempt(ctx, attempt); err != nil {
		p.logError(ctx, "webhook outcome not recorded", map[string]any{
			"webhook_event_id": record.ID,
			"site_id":          site.ID,
			"story_id":         storyID,
			"error":            err.Error(),
		})
	}

	result.Success = outcome.Success
	result.HTTPStatus = outcome.HTTPStatus
	result.Error = outcome.Error
	if !outcome.Success && result.Error == "" && outcome.HTTPStatus > 0 {
		result.Error = fmt.Sprintf("HTTP %d", outcome.HTTPStatus)
	}
	return siteDelivery{result: result, attempted: true, settled: true}
}

func summarizeDeliveries(deliveries []siteDelivery) (results []SiteDeliveryResult, delivered int, failed int) {
	results = make([]SiteDeliveryResult, 0, len(deliveries))
	for _, delivery := range deliveries {
		results = append(results, delivery.result)
		if delivery.result.Success {
			delivered++
		} else {
			failed++
		}
	}
	return results, delivered, failed
}
