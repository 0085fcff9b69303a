package httpapi

import (
	"time"

	"github.com/goliatone/go-syndication/core"
)

type WebhookEventResponse struct {
	ID           string  `json:"id"`
	SiteID       string  `json:"siteId"`
	StoryID      string  `json:"storyId"`
	EventType    string  `json:"eventType"`
	TargetURL    string  `json:"targetUrl"`
	Payload      string  `json:"payload"`
	Signature    string  `json:"signature"`
	Status       string  `json:"status"`
	HTTPStatus   int     `json:"httpStatus,omitempty"`
	ResponseBody string  `json:"responseBody,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	RetryCount   int     `json:"retryCount"`
	MaxRetries   int     `json:"maxRetries"`
	NextRetryAt  *string `json:"nextRetryAt,omitempty"`
	SentAt       *string `json:"sentAt,omitempty"`
	DeliveredAt  *string `json:"deliveredAt,omitempty"`
	FailedAt     *string `json:"failedAt,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

type DistributionResponse struct {
	ID                 string  `json:"id"`
	StoryID            string  `json:"storyId"`
	SiteID             string  `json:"siteId"`
	Status             string  `json:"status"`
	VerificationStatus string  `json:"verificationStatus"`
	CreatedAt          string  `json:"createdAt"`
	UpdatedAt          string  `json:"updatedAt"`
	RemovedAt          *string `json:"removedAt,omitempty"`
	LastVerifiedAt     *string `json:"lastVerifiedAt,omitempty"`
}

type SiteResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WebhookURL string `json:"webhookUrl"`
	APIBaseURL string `json:"apiBaseUrl,omitempty"`
	Status     string `json:"status"`
}

type SiteVerificationResponse struct {
	SiteID       string `json:"siteId"`
	SiteName     string `json:"siteName,omitempty"`
	Verified     bool   `json:"verified"`
	Unverifiable bool   `json:"unverifiable,omitempty"`
	HTTPStatus   int    `json:"httpStatus,omitempty"`
	Error        string `json:"error,omitempty"`
}

type ComplianceAlertResponse struct {
	ID             string                     `json:"id"`
	StoryID        string                     `json:"storyId"`
	FailedSites    []SiteVerificationResponse `json:"failedSites"`
	ElapsedMinutes float64                    `json:"elapsedMinutes"`
	RaisedAt       string                     `json:"raisedAt"`
}

func webhookEventResponse(event core.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:           event.ID,
		SiteID:       event.SiteID,
		StoryID:      event.StoryID,
		EventType:    string(event.EventType),
		TargetURL:    event.TargetURL,
		Payload:      string(event.Payload),
		Signature:    event.Signature,
		Status:       string(event.Status),
		HTTPStatus:   event.HTTPStatus,
		ResponseBody: event.ResponseBody,
		ErrorMessage: event.ErrorMessage,
		RetryCount:   event.RetryCount,
		MaxRetries:   event.MaxRetries,
		NextRetryAt:  formatOptional(event.NextRetryAt),
		SentAt:       formatOptional(event.SentAt),
		DeliveredAt:  formatOptional(event.DeliveredAt),
		FailedAt:     formatOptional(event.FailedAt),
		CreatedAt:    core.FormatTimestamp(event.CreatedAt),
	}
}

func distributionResponse(distribution core.Distribution) DistributionResponse {
	return DistributionResponse{
		ID:                 distribution.ID,
		StoryID:            distribution.StoryID,
		SiteID:             distribution.SiteID,
		Status:             string(distribution.Status),
		VerificationStatus: string(distribution.VerificationStatus),
		CreatedAt:          core.FormatTimestamp(distribution.CreatedAt),
		UpdatedAt:          core.FormatTimestamp(distribution.UpdatedAt),
		RemovedAt:          formatOptional(distribution.RemovedAt),
		LastVerifiedAt:     formatOptional(distribution.LastVerifiedAt),
	}
}

func siteResponse(site core.Site) SiteResponse {
	status := string(site.Status)
	if status == "" {
		status = string(core.SiteStatusActive)
	}
	return SiteResponse{
		ID:         site.ID,
		Name:       site.Name,
		WebhookURL: site.WebhookURL,
		APIBaseURL: site.APIBaseURL,
		Status:     status,
	}
}

func complianceAlertResponse(alert core.ComplianceAlert) ComplianceAlertResponse {
	failed := make([]SiteVerificationResponse, 0, len(alert.FailedSites))
	for _, site := range alert.FailedSites {
		failed = append(failed, SiteVerificationResponse{
			SiteID:       site.SiteID,
			SiteName:     site.SiteName,
			Verified:     site.Verified,
			Unverifiable: site.Unverifiable,
			HTTPStatus:   site.HTTPStatus,
			Error:        site.Error,
		})
	}
	return ComplianceAlertResponse{
		ID:             alert.ID,
		StoryID:        alert.StoryID,
		FailedSites:    failed,
		ElapsedMinutes: alert.ElapsedMinutes,
		RaisedAt:       core.FormatTimestamp(alert.RaisedAt),
	}
}

func formatOptional(at *time.Time) *string {
	if at == nil || at.IsZero() {
		return nil
	}
	value := core.FormatTimestamp(*at)
	return &value
}
