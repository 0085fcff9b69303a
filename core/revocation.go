package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const NoActiveDistributionsMessage = "no active distributions"

// RevokeContent notifies every site still actively carrying the story that it
// was withdrawn, moves each distribution along the takedown lifecycle and
// schedules the delayed removal check.
func (p *Pipeline) RevokeContent(ctx context.Context, req RevokeRequest) (result RevocationResult, err error) {
	if err := p.ensureReady(); err != nil {
		return RevocationResult{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{"story_id": strings.TrimSpace(req.StoryID)}
	defer func() {
		fields["delivered"] = result.Delivered
		fields["failed"] = result.Failed
		p.observeOperation(ctx, startedAt, "revoke_content", err, fields)
	}()

	if err := req.Validate(); err != nil {
		return RevocationResult{}, p.mapError(err)
	}
	storyID := strings.TrimSpace(req.StoryID)
	revokedAt := p.clock()
	result = RevocationResult{StoryID: storyID, RevokedAt: revokedAt}
	wf := p.newWorkflow("revoke_content", fields)

	targets, err := RunStep(ctx, wf, "fetch-distributions", func(ctx context.Context) ([]deliveryTarget, error) {
		return p.activeTargets(ctx, storyID, req.SiteIDs)
	})
	if err != nil {
		return result, p.mapError(err)
	}
	if len(targets) == 0 {
		result.Message = NoActiveDistributionsMessage
		result.Results = []SiteDeliveryResult{}
		resumed, err := p.resumeVerification(ctx, wf, storyID, req.SiteIDs, nil)
		if err != nil {
			return result, p.mapError(err)
		}
		result.VerificationScheduled = resumed > 0
		return result, nil
	}

	var data map[string]any
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		data = map[string]any{"reason": reason}
	}
	deliveries := p.deliverAll(ctx, wf, EventContentRevoked, storyID, targets, data, revokedAt)

	attemptedSites := make([]string, 0, len(deliveries))
	for idx, delivery := range deliveries {
		if delivery.attempted {
			attemptedSites = append(attemptedSites, delivery.result.SiteID)
		}
		if !delivery.settled {
			continue
		}
		next := DistributionStatusFailed
		if delivery.result.Success {
			next = DistributionStatusPendingRemoval
		}
		p.transitionDistribution(ctx, targets[idx].distributionID, delivery.result.SiteID, next)
	}
	result.Results, result.Delivered, result.Failed = summarizeDeliveries(deliveries)
	result.Message = fmt.Sprintf("delivered %d of %d", result.Delivered, len(deliveries))

	if len(attemptedSites) > 0 {
		err = wf.Step(ctx, "schedule-verification", func(ctx context.Context) error {
			return p.scheduleVerification(ctx, VerifyRequest{
				StoryID:             storyID,
				SiteIDs:             attemptedSites,
				RevocationTimestamp: revokedAt,
			})
		})
		if err != nil {
			return result, p.mapError(err)
		}
		result.VerificationScheduled = true
	}

	current := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		current[target.siteID] = struct{}{}
	}
	resumed, err := p.resumeVerification(ctx, wf, storyID, req.SiteIDs, current)
	if err != nil {
		return result, p.mapError(err)
	}
	if resumed > 0 {
		result.VerificationScheduled = true
	}
	return result, nil
}

func (p *Pipeline) scheduleVerification(ctx context.Context, req VerifyRequest) error {
	runAt := req.RevocationTimestamp.Add(p.config.Verification.Delay)
	if err := p.scheduler.Schedule(ctx, NewVerifyJobMessage(req), runAt); err != nil {
		return fmt.Errorf("core: schedule verification: %w", err)
	}
	return nil
}

// resumeVerification rebuilds the verification jobs of earlier revocation runs
// from the logged content_revoked events. A run that moved distributions out
// of active but never scheduled its check leaves nothing else behind. The
// verify job key is derived from the revocation timestamp, so groups already
// scheduled are dropped by the queue. Sites in exclude belong to the current
// run.
func (p *Pipeline) resumeVerification(
	ctx context.Context,
	wf *Workflow,
	storyID string,
	siteIDs []string,
	exclude map[string]struct{},
) (int, error) {
	return RunStep(ctx, wf, "resume-verification", func(ctx context.Context) (int, error) {
		events, err := p.events.ListByStory(ctx, storyID)
		if err != nil {
			return 0, fmt.Errorf("core: list revocation events: %w", err)
		}
		groups := revocationGroups(events, normalizeIDs(siteIDs), exclude)
		for _, group := range groups {
			if err := p.scheduleVerification(ctx, VerifyRequest{
				StoryID:             storyID,
				SiteIDs:             group.siteIDs,
				RevocationTimestamp: group.revokedAt,
			}); err != nil {
				return 0, err
			}
		}
		return len(groups), nil
	})
}

type revocationGroup struct {
	revokedAt time.Time
	siteIDs   []string
}

// revocationGroups collects the sites of each logged revocation run, keyed by
// the timestamp every payload of that run carries.
func revocationGroups(events []WebhookEvent, only []string, exclude map[string]struct{}) []revocationGroup {
	allowed := make(map[string]struct{}, len(only))
	for _, id := range only {
		allowed[id] = struct{}{}
	}
	byTimestamp := map[string]*revocationGroup{}
	seen := map[string]map[string]struct{}{}
	for _, event := range events {
		if event.EventType != EventContentRevoked {
			continue
		}
		if _, skip := exclude[event.SiteID]; skip {
			continue
		}
		if _, ok := allowed[event.SiteID]; len(allowed) > 0 && !ok {
			continue
		}
		var payload WebhookPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			continue
		}
		revokedAt, err := ParseTimestamp(payload.Timestamp)
		if err != nil {
			continue
		}
		key := FormatTimestamp(revokedAt)
		group, ok := byTimestamp[key]
		if !ok {
			group = &revocationGroup{revokedAt: revokedAt}
			byTimestamp[key] = group
			seen[key] = map[string]struct{}{}
		}
		if _, dup := seen[key][event.SiteID]; dup {
			continue
		}
		seen[key][event.SiteID] = struct{}{}
		group.siteIDs = append(group.siteIDs, event.SiteID)
	}
	out := make([]revocationGroup, 0, len(byTimestamp))
	for _, group := range byTimestamp {
		sort.Strings(group.siteIDs)
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].revokedAt.Before(out[j].revokedAt) })
	return out
}

func (p *Pipeline) activeTargets(ctx context.Context, storyID string, siteIDs []string) ([]deliveryTarget, error) {
	distributions, err := p.distributions.List(ctx, DistributionQuery{
		StoryID:  storyID,
		SiteIDs:  normalizeIDs(siteIDs),
		Statuses: []DistributionStatus{DistributionStatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("core: list active distributions: %w", err)
	}
	if len(distributions) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(distributions))
	for _, distribution := range distributions {
		ids = append(ids, distribution.SiteID)
	}
	sites, err := p.sites.GetSites(ctx, normalizeIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("core: load sites: %w", err)
	}
	targets := make([]deliveryTarget, 0, len(distributions))
	for _, distribution := range distributions {
		target := deliveryTarget{siteID: distribution.SiteID, distributionID: distribution.ID}
		if site, ok := sites[distribution.SiteID]; ok {
			site := site
			target.site = &site
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (p *Pipeline) transitionDistribution(ctx context.Context, distributionID, siteID string, next DistributionStatus) {
	if strings.TrimSpace(distributionID) == "" {
		return
	}
	applied, err := p.distributions.Transition(ctx, distributionID, next, p.clock())
	fields := map[string]any{
		"distribution_id": distributionID,
		"site_id":         siteID,
		"status":          string(next),
	}
	if err != nil {
		fields["error"] = err.Error()
		p.logError(ctx, "distribution transition failed", fields)
		return
	}
	if !applied {
		p.logWarn(ctx, "distribution transition skipped", fields)
	}
}
