package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-syndication/core"
)

// SyndicationService is the pipeline surface the commands drive.
type SyndicationService interface {
	RevokeContent(ctx context.Context, req core.RevokeRequest) (core.RevocationResult, error)
	VerifyRemoval(ctx context.Context, req core.VerifyRequest) (core.VerificationResult, error)
	RetryFailedWebhooks(ctx context.Context, req core.RetryRequest) (core.RetryResult, error)
	NotifySites(ctx context.Context, req core.NotifyRequest) (core.NotifyResult, error)
}

type SiteWriter interface {
	Upsert(ctx context.Context, site core.Site) (core.Site, error)
}

type DistributionWriter interface {
	Create(ctx context.Context, storyID string, siteID string) (core.Distribution, error)
}

type RevokeContentCommand struct {
	service SyndicationService
}

func NewRevokeContentCommand(service SyndicationService) *RevokeContentCommand {
	return &RevokeContentCommand{service: service}
}

func (c *RevokeContentCommand) Execute(ctx context.Context, msg RevokeContentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	out, err := c.service.RevokeContent(ctx, msg.Request)
	if out.StoryID != "" {
		// a scheduling failure still reports which sites were notified
		storeResult(ctx, out)
	}
	return err
}

type VerifyRemovalCommand struct {
	service SyndicationService
}

func NewVerifyRemovalCommand(service SyndicationService) *VerifyRemovalCommand {
	return &VerifyRemovalCommand{service: service}
}

func (c *VerifyRemovalCommand) Execute(ctx context.Context, msg VerifyRemovalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: verification service is required")
	}
	out, err := c.service.VerifyRemoval(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryFailedWebhooksCommand struct {
	service SyndicationService
}

func NewRetryFailedWebhooksCommand(service SyndicationService) *RetryFailedWebhooksCommand {
	return &RetryFailedWebhooksCommand{service: service}
}

func (c *RetryFailedWebhooksCommand) Execute(ctx context.Context, msg RetryFailedWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	out, err := c.service.RetryFailedWebhooks(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type NotifySitesCommand struct {
	service SyndicationService
}

func NewNotifySitesCommand(service SyndicationService) *NotifySitesCommand {
	return &NotifySitesCommand{service: service}
}

func (c *NotifySitesCommand) Execute(ctx context.Context, msg NotifySitesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notify service is required")
	}
	out, err := c.service.NotifySites(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertSiteCommand struct {
	sites SiteWriter
}

func NewUpsertSiteCommand(sites SiteWriter) *UpsertSiteCommand {
	return &UpsertSiteCommand{sites: sites}
}

func (c *UpsertSiteCommand) Execute(ctx context.Context, msg UpsertSiteMessage) error {
	if c == nil || c.sites == nil {
		return commandDependencyError("command: site writer is required")
	}
	out, err := c.sites.Upsert(ctx, msg.Site)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecordDistributionCommand struct {
	distributions DistributionWriter
}

func NewRecordDistributionCommand(distributions DistributionWriter) *RecordDistributionCommand {
	return &RecordDistributionCommand{distributions: distributions}
}

func (c *RecordDistributionCommand) Execute(ctx context.Context, msg RecordDistributionMessage) error {
	if c == nil || c.distributions == nil {
		return commandDependencyError("command: distribution writer is required")
	}
	out, err := c.distributions.Create(ctx, msg.StoryID, msg.SiteID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
