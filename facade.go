package syndication

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-syndication/adapters/gocommand"
	syndicationcommand "github.com/goliatone/go-syndication/command"
	"github.com/goliatone/go-syndication/core"
	syndicationquery "github.com/goliatone/go-syndication/query"
)

// FacadeDependencies are the stores the command and query handlers read
// and write besides the pipeline itself.
type FacadeDependencies struct {
	Service syndicationcommand.SyndicationService
	// SiteWriter is usually the cached registry so upserts invalidate it.
	SiteWriter    syndicationcommand.SiteWriter
	SiteReader    syndicationquery.SiteReader
	Distributions DistributionRepository
	WebhookEvents syndicationquery.WebhookEventReader
	Alerts        syndicationquery.ComplianceAlertReader
}

type DistributionRepository interface {
	syndicationcommand.DistributionWriter
	syndicationquery.DistributionReader
}

type Commands struct {
	RevokeContent       *syndicationcommand.RevokeContentCommand
	VerifyRemoval       *syndicationcommand.VerifyRemovalCommand
	RetryFailedWebhooks *syndicationcommand.RetryFailedWebhooksCommand
	NotifySites         *syndicationcommand.NotifySitesCommand
	UpsertSite          *syndicationcommand.UpsertSiteCommand
	RecordDistribution  *syndicationcommand.RecordDistributionCommand
}

type Queries struct {
	GetWebhookEvent      *syndicationquery.GetWebhookEventQuery
	ListWebhookEvents    *syndicationquery.ListWebhookEventsQuery
	ListDistributions    *syndicationquery.ListDistributionsQuery
	ListSites            *syndicationquery.ListSitesQuery
	ListComplianceAlerts *syndicationquery.ListComplianceAlertsQuery
}

// Facade bundles the command and query handlers. Its methods validate the
// message and run the handler in-process; Register exposes the same handlers
// on the go-command dispatcher.
type Facade struct {
	commands Commands
	queries  Queries
}

func NewFacade(deps FacadeDependencies) (*Facade, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("syndication: pipeline service is required")
	}
	if deps.SiteWriter == nil || deps.SiteReader == nil {
		return nil, fmt.Errorf("syndication: site writer and reader are required")
	}
	if deps.Distributions == nil {
		return nil, fmt.Errorf("syndication: distribution repository is required")
	}
	if deps.WebhookEvents == nil {
		return nil, fmt.Errorf("syndication: webhook event reader is required")
	}
	facade := &Facade{}
	facade.commands = Commands{
		RevokeContent:       syndicationcommand.NewRevokeContentCommand(deps.Service),
		VerifyRemoval:       syndicationcommand.NewVerifyRemovalCommand(deps.Service),
		RetryFailedWebhooks: syndicationcommand.NewRetryFailedWebhooksCommand(deps.Service),
		NotifySites:         syndicationcommand.NewNotifySitesCommand(deps.Service),
		UpsertSite:          syndicationcommand.NewUpsertSiteCommand(deps.SiteWriter),
		RecordDistribution:  syndicationcommand.NewRecordDistributionCommand(deps.Distributions),
	}
	facade.queries = Queries{
		GetWebhookEvent:      syndicationquery.NewGetWebhookEventQuery(deps.WebhookEvents),
		ListWebhookEvents:    syndicationquery.NewListWebhookEventsQuery(deps.WebhookEvents),
		ListDistributions:    syndicationquery.NewListDistributionsQuery(deps.Distributions),
		ListSites:            syndicationquery.NewListSitesQuery(deps.SiteReader),
		ListComplianceAlerts: syndicationquery.NewListComplianceAlertsQuery(deps.Alerts),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// Register subscribes every command and query on the go-command dispatcher.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("syndication: facade is nil")
	}
	return gocommand.RegisterAll(adapter,
		gocommand.CommandRegistration[syndicationcommand.RevokeContentMessage](f.commands.RevokeContent),
		gocommand.CommandRegistration[syndicationcommand.VerifyRemovalMessage](f.commands.VerifyRemoval),
		gocommand.CommandRegistration[syndicationcommand.RetryFailedWebhooksMessage](f.commands.RetryFailedWebhooks),
		gocommand.CommandRegistration[syndicationcommand.NotifySitesMessage](f.commands.NotifySites),
		gocommand.CommandRegistration[syndicationcommand.UpsertSiteMessage](f.commands.UpsertSite),
		gocommand.CommandRegistration[syndicationcommand.RecordDistributionMessage](f.commands.RecordDistribution),
		gocommand.QueryRegistration[syndicationquery.GetWebhookEventMessage, core.WebhookEvent](f.queries.GetWebhookEvent),
		gocommand.QueryRegistration[syndicationquery.ListWebhookEventsMessage, []core.WebhookEvent](f.queries.ListWebhookEvents),
		gocommand.QueryRegistration[syndicationquery.ListDistributionsMessage, []core.Distribution](f.queries.ListDistributions),
		gocommand.QueryRegistration[syndicationquery.ListSitesMessage, []core.Site](f.queries.ListSites),
		gocommand.QueryRegistration[syndicationquery.ListComplianceAlertsMessage, []core.ComplianceAlert](f.queries.ListComplianceAlerts),
	)
}

func (f *Facade) RevokeContent(ctx context.Context, req core.RevokeRequest) (core.RevocationResult, error) {
	return runCommand[syndicationcommand.RevokeContentMessage, core.RevocationResult](ctx,
		f.Commands().RevokeContent, syndicationcommand.RevokeContentMessage{Request: req})
}

func (f *Facade) VerifyRemoval(ctx context.Context, req core.VerifyRequest) (core.VerificationResult, error) {
	return runCommand[syndicationcommand.VerifyRemovalMessage, core.VerificationResult](ctx,
		f.Commands().VerifyRemoval, syndicationcommand.VerifyRemovalMessage{Request: req})
}

func (f *Facade) RetryFailedWebhooks(ctx context.Context, req core.RetryRequest) (core.RetryResult, error) {
	return runCommand[syndicationcommand.RetryFailedWebhooksMessage, core.RetryResult](ctx,
		f.Commands().RetryFailedWebhooks, syndicationcommand.RetryFailedWebhooksMessage{Request: req})
}

func (f *Facade) NotifySites(ctx context.Context, req core.NotifyRequest) (core.NotifyResult, error) {
	return runCommand[syndicationcommand.NotifySitesMessage, core.NotifyResult](ctx,
		f.Commands().NotifySites, syndicationcommand.NotifySitesMessage{Request: req})
}

func (f *Facade) UpsertSite(ctx context.Context, site core.Site) (core.Site, error) {
	return runCommand[syndicationcommand.UpsertSiteMessage, core.Site](ctx,
		f.Commands().UpsertSite, syndicationcommand.UpsertSiteMessage{Site: site})
}

func (f *Facade) RecordDistribution(ctx context.Context, storyID string, siteID string) (core.Distribution, error) {
	return runCommand[syndicationcommand.RecordDistributionMessage, core.Distribution](ctx,
		f.Commands().RecordDistribution, syndicationcommand.RecordDistributionMessage{StoryID: storyID, SiteID: siteID})
}

func (f *Facade) GetWebhookEvent(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	return runQuery[syndicationquery.GetWebhookEventMessage, core.WebhookEvent](ctx,
		f.Queries().GetWebhookEvent, syndicationquery.GetWebhookEventMessage{EventID: eventID})
}

func (f *Facade) ListWebhookEvents(ctx context.Context, storyID string) ([]core.WebhookEvent, error) {
	return runQuery[syndicationquery.ListWebhookEventsMessage, []core.WebhookEvent](ctx,
		f.Queries().ListWebhookEvents, syndicationquery.ListWebhookEventsMessage{StoryID: storyID})
}

func (f *Facade) ListDistributions(ctx context.Context, msg syndicationquery.ListDistributionsMessage) ([]core.Distribution, error) {
	return runQuery[syndicationquery.ListDistributionsMessage, []core.Distribution](ctx,
		f.Queries().ListDistributions, msg)
}

func (f *Facade) ListSites(ctx context.Context) ([]core.Site, error) {
	return runQuery[syndicationquery.ListSitesMessage, []core.Site](ctx,
		f.Queries().ListSites, syndicationquery.ListSitesMessage{})
}

func (f *Facade) ListComplianceAlerts(ctx context.Context, storyID string) ([]core.ComplianceAlert, error) {
	return runQuery[syndicationquery.ListComplianceAlertsMessage, []core.ComplianceAlert](ctx,
		f.Queries().ListComplianceAlerts, syndicationquery.ListComplianceAlertsMessage{StoryID: storyID})
}

type validatedMessage interface {
	Validate() error
}

func runCommand[T validatedMessage, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg)
	out, _ := collector.Load()
	return out, err
}

func runQuery[T validatedMessage, R any](ctx context.Context, qry gocmd.Querier[T, R], msg T) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	return qry.Query(ctx, msg)
}
