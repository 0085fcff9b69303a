package query

import (
	"strings"

	"github.com/goliatone/go-syndication/core"
)

const (
	TypeGetWebhookEvent      = "syndication.query.webhook_event.get"
	TypeListWebhookEvents    = "syndication.query.webhook_events.list"
	TypeListDistributions    = "syndication.query.distributions.list"
	TypeListSites            = "syndication.query.sites.list"
	TypeListComplianceAlerts = "syndication.query.compliance_alerts.list"
)

type GetWebhookEventMessage struct {
	EventID string
}

func (GetWebhookEventMessage) Type() string { return TypeGetWebhookEvent }

func (m GetWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

// ListWebhookEventsMessage returns the delivery log of one story, oldest first.
type ListWebhookEventsMessage struct {
	StoryID string
}

func (ListWebhookEventsMessage) Type() string { return TypeListWebhookEvents }

func (m ListWebhookEventsMessage) Validate() error {
	if strings.TrimSpace(m.StoryID) == "" {
		return queryValidationError("story_id", "story id is required")
	}
	return nil
}

type ListDistributionsMessage struct {
	StoryID  string
	SiteIDs  []string
	Statuses []core.DistributionStatus
}

func (ListDistributionsMessage) Type() string { return TypeListDistributions }

func (m ListDistributionsMessage) Validate() error {
	if strings.TrimSpace(m.StoryID) == "" {
		return queryValidationError("story_id", "story id is required")
	}
	for _, status := range m.Statuses {
		switch status {
		case core.DistributionStatusActive,
			core.DistributionStatusPendingRemoval,
			core.DistributionStatusRemoved,
			core.DistributionStatusFailed:
		default:
			return queryValidationError("statuses", "unknown distribution status "+string(status))
		}
	}
	return nil
}

type ListSitesMessage struct{}

func (ListSitesMessage) Type() string { return TypeListSites }

func (ListSitesMessage) Validate() error { return nil }

type ListComplianceAlertsMessage struct {
	StoryID string
}

func (ListComplianceAlertsMessage) Type() string { return TypeListComplianceAlerts }

func (m ListComplianceAlertsMessage) Validate() error {
	if strings.TrimSpace(m.StoryID) == "" {
		return queryValidationError("story_id", "story id is required")
	}
	return nil
}
