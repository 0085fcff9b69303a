package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-syndication/core"
)

type WebhookEventReader interface {
	Get(ctx context.Context, id string) (core.WebhookEvent, error)
	ListByStory(ctx context.Context, storyID string) ([]core.WebhookEvent, error)
}

type DistributionReader interface {
	List(ctx context.Context, query core.DistributionQuery) ([]core.Distribution, error)
}

type SiteReader interface {
	List(ctx context.Context) ([]core.Site, error)
}

type ComplianceAlertReader interface {
	ListByStory(ctx context.Context, storyID string) ([]core.ComplianceAlert, error)
}

type GetWebhookEventQuery struct {
	reader WebhookEventReader
}

func NewGetWebhookEventQuery(reader WebhookEventReader) *GetWebhookEventQuery {
	return &GetWebhookEventQuery{reader: reader}
}

func (q *GetWebhookEventQuery) Query(ctx context.Context, msg GetWebhookEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: webhook event reader is required")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.EventID))
}

type ListWebhookEventsQuery struct {
	reader WebhookEventReader
}

func NewListWebhookEventsQuery(reader WebhookEventReader) *ListWebhookEventsQuery {
	return &ListWebhookEventsQuery{reader: reader}
}

func (q *ListWebhookEventsQuery) Query(ctx context.Context, msg ListWebhookEventsMessage) ([]core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook event reader is required")
	}
	return q.reader.ListByStory(ctx, strings.TrimSpace(msg.StoryID))
}

type ListDistributionsQuery struct {
	reader DistributionReader
}

func NewListDistributionsQuery(reader DistributionReader) *ListDistributionsQuery {
	return &ListDistributionsQuery{reader: reader}
}

func (q *ListDistributionsQuery) Query(ctx context.Context, msg ListDistributionsMessage) ([]core.Distribution, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: distribution reader is required")
	}
	return q.reader.List(ctx, core.DistributionQuery{
		StoryID:  strings.TrimSpace(msg.StoryID),
		SiteIDs:  append([]string(nil), msg.SiteIDs...),
		Statuses: append([]core.DistributionStatus(nil), msg.Statuses...),
	})
}

type ListSitesQuery struct {
	reader SiteReader
}

func NewListSitesQuery(reader SiteReader) *ListSitesQuery {
	return &ListSitesQuery{reader: reader}
}

func (q *ListSitesQuery) Query(ctx context.Context, _ ListSitesMessage) ([]core.Site, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: site reader is required")
	}
	return q.reader.List(ctx)
}

type ListComplianceAlertsQuery struct {
	reader ComplianceAlertReader
}

func NewListComplianceAlertsQuery(reader ComplianceAlertReader) *ListComplianceAlertsQuery {
	return &ListComplianceAlertsQuery{reader: reader}
}

func (q *ListComplianceAlertsQuery) Query(
	ctx context.Context,
	msg ListComplianceAlertsMessage,
) ([]core.ComplianceAlert, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: compliance alert reader is required")
	}
	return q.reader.ListByStory(ctx, strings.TrimSpace(msg.StoryID))
}
