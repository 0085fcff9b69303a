package command

import (
	"strings"

	"github.com/goliatone/go-syndication/core"
)

const (
	TypeRevokeContent       = "syndication.command.content.revoke"
	TypeVerifyRemoval       = "syndication.command.removal.verify"
	TypeRetryFailedWebhooks = "syndication.command.webhooks.retry"
	TypeNotifySites         = "syndication.command.sites.notify"
	TypeUpsertSite          = "syndication.command.site.upsert"
	TypeRecordDistribution  = "syndication.command.distribution.record"
)

type RevokeContentMessage struct {
	Request core.RevokeRequest
}

func (RevokeContentMessage) Type() string { return TypeRevokeContent }

func (m RevokeContentMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: invalid revoke request")
}

type VerifyRemovalMessage struct {
	Request core.VerifyRequest
}

func (VerifyRemovalMessage) Type() string { return TypeVerifyRemoval }

func (m VerifyRemovalMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: invalid verification request")
}

type RetryFailedWebhooksMessage struct {
	Request core.RetryRequest
}

func (RetryFailedWebhooksMessage) Type() string { return TypeRetryFailedWebhooks }

func (m RetryFailedWebhooksMessage) Validate() error {
	if m.Request.BatchSize < 0 {
		return commandValidationError("batch_size", "must be >= 0")
	}
	return nil
}

type NotifySitesMessage struct {
	Request core.NotifyRequest
}

func (NotifySitesMessage) Type() string { return TypeNotifySites }

func (m NotifySitesMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: invalid notify request")
}

type UpsertSiteMessage struct {
	Site core.Site
}

func (UpsertSiteMessage) Type() string { return TypeUpsertSite }

func (m UpsertSiteMessage) Validate() error {
	if strings.TrimSpace(m.Site.ID) == "" {
		return commandValidationError("id", "site id is required")
	}
	if strings.TrimSpace(m.Site.WebhookURL) == "" && m.Site.Status != core.SiteStatusInactive {
		return commandValidationError("webhook_url", "an active site needs a webhook url")
	}
	return nil
}

type RecordDistributionMessage struct {
	StoryID string
	SiteID  string
}

func (RecordDistributionMessage) Type() string { return TypeRecordDistribution }

func (m RecordDistributionMessage) Validate() error {
	if strings.TrimSpace(m.StoryID) == "" {
		return commandValidationError("story_id", "story id is required")
	}
	if strings.TrimSpace(m.SiteID) == "" {
		return commandValidationError("site_id", "site id is required")
	}
	return nil
}
