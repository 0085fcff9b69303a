package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-syndication/core"
)

var (
	_ gocmd.Querier[GetWebhookEventMessage, core.WebhookEvent]           = (*GetWebhookEventQuery)(nil)
	_ gocmd.Querier[ListWebhookEventsMessage, []core.WebhookEvent]       = (*ListWebhookEventsQuery)(nil)
	_ gocmd.Querier[ListDistributionsMessage, []core.Distribution]       = (*ListDistributionsQuery)(nil)
	_ gocmd.Querier[ListSitesMessage, []core.Site]                       = (*ListSitesQuery)(nil)
	_ gocmd.Querier[ListComplianceAlertsMessage, []core.ComplianceAlert] = (*ListComplianceAlertsQuery)(nil)
)
