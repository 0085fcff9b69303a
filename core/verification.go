package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const UnverifiableSiteMessage = "no API URL configured for verification"

// VerifyRemoval probes every notified site for the withdrawn story and
// classifies the result against the compliance deadline.
func (p *Pipeline) VerifyRemoval(ctx context.Context, req VerifyRequest) (result VerificationResult, err error) {
	if err := p.ensureReady(); err != nil {
		return VerificationResult{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{
		"story_id": strings.TrimSpace(req.StoryID),
		"recheck":  req.Recheck,
	}
	defer func() {
		fields["all_verified"] = result.AllVerified
		fields["within_deadline"] = result.WithinDeadline
		fields["elapsed_minutes"] = result.ElapsedMinutes
		fields["alert_raised"] = result.AlertRaised
		p.observeOperation(ctx, startedAt, "verify_removal", err, fields)
	}()

	if err := req.Validate(); err != nil {
		return VerificationResult{}, p.mapError(err)
	}
	storyID := strings.TrimSpace(req.StoryID)
	siteIDs := normalizeIDs(req.SiteIDs)
	wf := p.newWorkflow("verify_removal", fields)

	type verifyContext struct {
		sites         map[string]Site
		distributions map[string]Distribution
	}
	loaded, err := RunStep(ctx, wf, "load-targets", func(ctx context.Context) (verifyContext, error) {
		sites, err := p.sites.GetSites(ctx, siteIDs)
		if err != nil {
			return verifyContext{}, fmt.Errorf("core: load sites: %w", err)
		}
		rows, err := p.distributions.List(ctx, DistributionQuery{StoryID: storyID, SiteIDs: siteIDs})
		if err != nil {
			return verifyContext{}, fmt.Errorf("core: list distributions: %w", err)
		}
		bySite := make(map[string]Distribution, len(rows))
		for _, row := range rows {
			bySite[row.SiteID] = row
		}
		return verifyContext{sites: sites, distributions: bySite}, nil
	})
	if err != nil {
		return VerificationResult{StoryID: storyID}, p.mapError(err)
	}

	results := make([]SiteVerification, len(siteIDs))
	var wg sync.WaitGroup
	for idx, siteID := range siteIDs {
		wg.Add(1)
		go func(slot int, siteID string) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					results[slot] = SiteVerification{SiteID: siteID, Error: fmt.Sprintf("verification panicked: %v", recovered)}
				}
			}()
			var site *Site
			if found, ok := loaded.sites[siteID]; ok {
				site = &found
			}
			distribution, hasDistribution := loaded.distributions[siteID]
			results[slot] = p.verifyOne(ctx, storyID, siteID, site, distribution, hasDistribution)
		}(idx, siteID)
	}
	wg.Wait()

	now := p.clock()
	elapsed := now.Sub(req.RevocationTimestamp).Minutes()
	result = VerificationResult{
		StoryID:        storyID,
		AllVerified:    true,
		WithinDeadline: elapsed < p.config.Verification.Deadline.Minutes(),
		ElapsedMinutes: elapsed,
		Results:        results,
	}
	pending := make([]SiteVerification, 0, len(results))
	for _, site := range results {
		if !site.Verified {
			result.AllVerified = false
			pending = append(pending, site)
		}
	}
	if result.AllVerified {
		return result, nil
	}

	if !result.WithinDeadline {
		err = wf.Step(ctx, "compliance-alert", func(ctx context.Context) error {
			return p.alerts.PublishComplianceAlert(ctx, ComplianceAlert{
				StoryID:        storyID,
				FailedSites:    pending,
				ElapsedMinutes: elapsed,
				RaisedAt:       now,
			})
		})
		if err != nil {
			return result, p.mapError(fmt.Errorf("core: publish compliance alert: %w", err))
		}
		result.AlertRaised = true
		return result, nil
	}

	if req.Recheck || !p.config.Verification.RecheckAtDeadline {
		return result, nil
	}
	err = wf.Step(ctx, "schedule-deadline-recheck", func(ctx context.Context) error {
		ids := make([]string, 0, len(pending))
		for _, site := range pending {
			ids = append(ids, site.SiteID)
		}
		recheck := VerifyRequest{
			StoryID:             storyID,
			SiteIDs:             ids,
			RevocationTimestamp: req.RevocationTimestamp,
			Recheck:             true,
		}
		runAt := req.RevocationTimestamp.Add(p.config.Verification.Deadline)
		return p.scheduler.Schedule(ctx, NewVerifyJobMessage(recheck), runAt)
	})
	if err != nil {
		return result, p.mapError(fmt.Errorf("core: schedule deadline recheck: %w", err))
	}
	result.RecheckScheduled = true
	return result, nil
}

func (p *Pipeline) verifyOne(
	ctx context.Context,
	storyID string,
	siteID string,
	site *Site,
	distribution Distribution,
	hasDistribution bool,
) SiteVerification {
	out := SiteVerification{SiteID: siteID}
	update := VerificationUpdate{DistributionID: distribution.ID}
	if site != nil {
		out.SiteName = site.Name
	}

	if site == nil || !site.Verifiable() {
		out.Unverifiable = true
		out.Error = UnverifiableSiteMessage
		update.VerificationStatus = VerificationStatusUnverified
		p.logWarn(ctx, "site cannot be verified", map[string]any{
			"story_id": storyID,
			"site_id":  siteID,
		})
	} else {
		probe := p.prober.Probe(ctx, StoryProbeURL(site.APIBaseURL, storyID))
		out.HTTPStatus = probe.HTTPStatus
		if probe.HTTPStatus == http.StatusNotFound {
			out.Verified = true
			update.Status = DistributionStatusRemoved
			update.VerificationStatus = VerificationStatusVerified
		} else {
			out.Error = probe.Error
			if out.Error == "" {
				out.Error = fmt.Sprintf("content still reachable: HTTP %d", probe.HTTPStatus)
			}
			update.Status = DistributionStatusFailed
			update.VerificationStatus = VerificationStatusFailed
		}
	}

	if !hasDistribution {
		p.logWarn(ctx, "no distribution to record verification", map[string]any{
			"story_id": storyID,
			"site_id":  siteID,
		})
		return out
	}
	update.VerifiedAt = p.clock()
	if err := p.distributions.ApplyVerification(ctx, update); err != nil {
		p.logError(ctx, "verification not recorded", map[string]any{
			"distribution_id": distribution.ID,
			"site_id":         siteID,
			"error":           err.Error(),
		})
	}
	return out
}

// StoryProbeURL is the resource a site must answer 404 for once the story is
// taken down.
func StoryProbeURL(apiBaseURL, storyID string) string {
	return strings.TrimRight(strings.TrimSpace(apiBaseURL), "/") + "/stories/" + url.PathEscape(storyID)
}
