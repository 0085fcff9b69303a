package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/query"
)

type healthOutput struct {
	Body map[string]string
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(context.Context, *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}

type webhookEventsOutput struct {
	Body struct {
		Items []WebhookEventResponse `json:"items"`
	}
}

type webhookEventOutput struct {
	Body WebhookEventResponse
}

func registerWebhookEvents(api huma.API, reader Reader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-story-webhook-events",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/webhook-events",
		Summary:     "List webhook deliveries for a story",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StoryID string `path:"story_id"`
	}) (*webhookEventsOutput, error) {
		events, err := reader.ListWebhookEvents(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &webhookEventsOutput{}
		out.Body.Items = make([]WebhookEventResponse, 0, len(events))
		for _, event := range events {
			out.Body.Items = append(out.Body.Items, webhookEventResponse(event))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-webhook-event",
		Method:      http.MethodGet,
		Path:        "/webhook-events/{event_id}",
		Summary:     "Get one webhook delivery",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*webhookEventOutput, error) {
		event, err := reader.GetWebhookEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &webhookEventOutput{Body: webhookEventResponse(event)}, nil
	})
}

type distributionsOutput struct {
	Body struct {
		Items []DistributionResponse `json:"items"`
	}
}

func registerDistributions(api huma.API, reader Reader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-story-distributions",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/distributions",
		Summary:     "List where a story is syndicated",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StoryID string `path:"story_id"`
		SiteID  string `query:"site_id" doc:"Comma separated site ids"`
		Status  string `query:"status" doc:"Comma separated statuses"`
	}) (*distributionsOutput, error) {
		msg := query.ListDistributionsMessage{
			StoryID: input.StoryID,
			SiteIDs: splitList(input.SiteID),
		}
		for _, status := range splitList(input.Status) {
			msg.Statuses = append(msg.Statuses, core.DistributionStatus(status))
		}
		distributions, err := reader.ListDistributions(ctx, msg)
		if err != nil {
			return nil, handleError(err)
		}
		out := &distributionsOutput{}
		out.Body.Items = make([]DistributionResponse, 0, len(distributions))
		for _, distribution := range distributions {
			out.Body.Items = append(out.Body.Items, distributionResponse(distribution))
		}
		return out, nil
	})
}

type sitesOutput struct {
	Body struct {
		Items []SiteResponse `json:"items"`
	}
}

func registerSites(api huma.API, reader Reader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sites",
		Method:      http.MethodGet,
		Path:        "/sites",
		Summary:     "List registered partner sites",
	}, func(ctx context.Context, _ *struct{}) (*sitesOutput, error) {
		sites, err := reader.ListSites(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &sitesOutput{}
		out.Body.Items = make([]SiteResponse, 0, len(sites))
		for _, site := range sites {
			out.Body.Items = append(out.Body.Items, siteResponse(site))
		}
		return out, nil
	})
}

type complianceAlertsOutput struct {
	Body struct {
		Items []ComplianceAlertResponse `json:"items"`
	}
}

func registerComplianceAlerts(api huma.API, reader Reader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-story-compliance-alerts",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/compliance-alerts",
		Summary:     "List compliance alerts raised for a story",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StoryID string `path:"story_id"`
	}) (*complianceAlertsOutput, error) {
		alerts, err := reader.ListComplianceAlerts(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &complianceAlertsOutput{}
		out.Body.Items = make([]ComplianceAlertResponse, 0, len(alerts))
		for _, alert := range alerts {
			out.Body.Items = append(out.Body.Items, complianceAlertResponse(alert))
		}
		return out, nil
	})
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
