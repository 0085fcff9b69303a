package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-syndication/core"
)

var (
	_ gocmd.Commander[RevokeContentMessage]       = (*RevokeContentCommand)(nil)
	_ gocmd.Commander[VerifyRemovalMessage]       = (*VerifyRemovalCommand)(nil)
	_ gocmd.Commander[RetryFailedWebhooksMessage] = (*RetryFailedWebhooksCommand)(nil)
	_ gocmd.Commander[NotifySitesMessage]         = (*NotifySitesCommand)(nil)
	_ gocmd.Commander[UpsertSiteMessage]          = (*UpsertSiteCommand)(nil)
	_ gocmd.Commander[RecordDistributionMessage]  = (*RecordDistributionCommand)(nil)
	_ SyndicationService                          = (*core.Pipeline)(nil)
)
