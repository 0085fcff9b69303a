package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NotifySites delivers a non-revocation event (update or consent change) to
// the sites carrying the story. Distribution state is left untouched.
func (p *Pipeline) NotifySites(ctx context.Context, req NotifyRequest) (result NotifyResult, err error) {
	if err := p.ensureReady(); err != nil {
		return NotifyResult{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{
		"story_id":   strings.TrimSpace(req.StoryID),
		"event_type": string(req.Event),
	}
	defer func() {
		fields["delivered"] = result.Delivered
		fields["failed"] = result.Failed
		p.observeOperation(ctx, startedAt, "notify_sites", err, fields)
	}()

	if err := req.Validate(); err != nil {
		return NotifyResult{}, p.mapError(err)
	}
	storyID := strings.TrimSpace(req.StoryID)
	at := p.clock()
	result = NotifyResult{StoryID: storyID, Event: req.Event}
	wf := p.newWorkflow("notify_sites", fields)

	targets, err := RunStep(ctx, wf, "fetch-distributions", func(ctx context.Context) ([]deliveryTarget, error) {
		return p.activeTargets(ctx, storyID, req.SiteIDs)
	})
	if err != nil {
		return result, p.mapError(err)
	}
	if len(targets) == 0 {
		result.Message = NoActiveDistributionsMessage
		result.Results = []SiteDeliveryResult{}
		return result, nil
	}

	deliveries := p.deliverAll(ctx, wf, req.Event, storyID, targets, req.Data, at)
	result.Results, result.Delivered, result.Failed = summarizeDeliveries(deliveries)
	result.Message = fmt.Sprintf("delivered %d of %d", result.Delivered, len(deliveries))
	return result, nil
}
