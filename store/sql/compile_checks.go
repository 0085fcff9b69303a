package sqlstore

import (
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-syndication/core"
)

var (
	_ core.DistributionStore = (*DistributionStore)(nil)
	_ core.SiteRegistry      = (*SiteStore)(nil)
	_ core.SiteRegistry      = (*CachedSiteRegistry)(nil)
	_ SiteSource             = (*SiteStore)(nil)
	_ core.WebhookEventStore = (*WebhookEventStore)(nil)
	_ core.AlertPublisher    = (*ComplianceAlertStore)(nil)
	_ core.JobScheduler      = (*JobQueueStore)(nil)
	_ queue.Enqueuer         = (*JobQueueStore)(nil)
	_ queue.Dequeuer         = (*JobQueueStore)(nil)
	_ queue.Delivery         = (*jobDelivery)(nil)
)
