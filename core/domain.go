package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDistributionTransition = errors.New("core: invalid distribution status transition")
	ErrInvalidEventType              = errors.New("core: invalid webhook event type")
	ErrDistributionNotFound          = errors.New("core: distribution not found")
	ErrSiteNotFound                  = errors.New("core: site not found")
	ErrWebhookEventNotFound          = errors.New("core: webhook event not found")
)

// TimestampLayout is the ISO8601 layout used on the wire (millisecond
// precision, UTC, trailing Z).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type DistributionStatus string

const (
	DistributionStatusActive         DistributionStatus = "active"
	DistributionStatusPendingRemoval DistributionStatus = "pending_removal"
	DistributionStatusRemoved        DistributionStatus = "removed"
	DistributionStatusFailed         DistributionStatus = "failed"
)

type VerificationStatus string

const (
	VerificationStatusUnverified VerificationStatus = "unverified"
	VerificationStatusVerified   VerificationStatus = "verified"
	VerificationStatusFailed     VerificationStatus = "failed"
)

type Distribution struct {
	ID                 string
	StoryID            string
	SiteID             string
	Status             DistributionStatus
	VerificationStatus VerificationStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
	RemovedAt          *time.Time
	LastVerifiedAt     *time.Time
}

// TransitionTo moves the distribution along the takedown lifecycle. A
// distribution never re-enters active; republishing is an external action.
func (d *Distribution) TransitionTo(status DistributionStatus, now time.Time) error {
	if d == nil {
		return nil
	}
	if !DistributionTransitionAllowed(d.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDistributionTransition, d.Status, status)
	}
	d.Status = status
	d.UpdatedAt = now
	if status == DistributionStatusRemoved {
		removedAt := now
		d.RemovedAt = &removedAt
	}
	return nil
}

func DistributionTransitionAllowed(current, next DistributionStatus) bool {
	_, ok := distributionTransitions[current][next]
	return ok
}

// DistributionSourceStatuses lists every status from which next is reachable.
func DistributionSourceStatuses(next DistributionStatus) []DistributionStatus {
	out := make([]DistributionStatus, 0, 2)
	for _, current := range []DistributionStatus{
		DistributionStatusActive,
		DistributionStatusPendingRemoval,
		DistributionStatusRemoved,
		DistributionStatusFailed,
	} {
		if DistributionTransitionAllowed(current, next) {
			out = append(out, current)
		}
	}
	return out
}

var distributionTransitions = map[DistributionStatus]map[DistributionStatus]struct{}{
	DistributionStatusActive: {
		DistributionStatusPendingRemoval: {},
		DistributionStatusFailed:         {},
	},
	DistributionStatusPendingRemoval: {
		DistributionStatusRemoved: {},
		DistributionStatusFailed:  {},
	},
	DistributionStatusFailed: {
		DistributionStatusRemoved: {},
		DistributionStatusFailed:  {},
	},
}

type SiteStatus string

const (
	SiteStatusActive   SiteStatus = "active"
	SiteStatusInactive SiteStatus = "inactive"
)

type Site struct {
	ID         string
	Name       string
	WebhookURL string
	APIBaseURL string
	Status     SiteStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Site) Deliverable() bool {
	if strings.TrimSpace(s.WebhookURL) == "" {
		return false
	}
	return s.Status == "" || s.Status == SiteStatusActive
}

func (s Site) Verifiable() bool {
	return strings.TrimSpace(s.APIBaseURL) != ""
}

type EventType string

const (
	EventContentRevoked  EventType = "content_revoked"
	EventContentUpdated  EventType = "content_updated"
	EventConsentApproved EventType = "consent_approved"
	EventConsentDenied   EventType = "consent_denied"
)

func (e EventType) Validate() error {
	switch e {
	case EventContentRevoked, EventContentUpdated, EventConsentApproved, EventConsentDenied:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventType, string(e))
	}
}

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusDelivered WebhookStatus = "delivered"
	WebhookStatusFailed    WebhookStatus = "failed"
)

type WebhookEvent struct {
	ID           string
	SiteID       string
	StoryID      string
	EventType    EventType
	TargetURL    string
	Payload      []byte
	Signature    string
	Status       WebhookStatus
	HTTPStatus   int
	ResponseBody string
	ErrorMessage string
	RetryCount   int
	MaxRetries   int
	NextRetryAt  *time.Time
	SentAt       *time.Time
	DeliveredAt  *time.Time
	FailedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Retryable reports whether the retry sweep may still select this event.
func (e WebhookEvent) Retryable(now time.Time) bool {
	if e.Status != WebhookStatusFailed || e.RetryCount >= e.MaxRetries {
		return false
	}
	return e.NextRetryAt != nil && !e.NextRetryAt.After(now)
}

// WebhookPayload is the body delivered to partner sites. Field order is part
// of the signature contract; do not reorder.
type WebhookPayload struct {
	Event     EventType      `json:"event"`
	StoryID   string         `json:"storyId"`
	SiteID    string         `json:"siteId"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func NewWebhookPayload(event EventType, storyID, siteID string, at time.Time, data map[string]any) WebhookPayload {
	payload := WebhookPayload{
		Event:     event,
		StoryID:   strings.TrimSpace(storyID),
		SiteID:    strings.TrimSpace(siteID),
		Timestamp: FormatTimestamp(at),
	}
	if len(data) > 0 {
		payload.Data = copyAnyMap(data)
	}
	return payload
}

// Canonical returns the byte representation that is signed, stored and sent.
func (p WebhookPayload) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(p); err != nil {
		return nil, fmt.Errorf("core: encode webhook payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func ParseWebhookPayload(raw []byte) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("core: decode webhook payload: %w", err)
	}
	return payload, nil
}

func FormatTimestamp(at time.Time) string {
	return at.UTC().Format(TimestampLayout)
}

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("core: timestamp is required")
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("core: invalid timestamp %q: %w", value, err)
	}
	return parsed.UTC(), nil
}

type DeliveryRequest struct {
	TargetURL  string
	Body       []byte
	Event      EventType
	Signature  string
	DeliveryID string
}

type DeliveryOutcome struct {
	Success      bool
	HTTPStatus   int
	ResponseBody string
	Error        string
	Duration     time.Duration
}

type ProbeOutcome struct {
	HTTPStatus int
	Error      string
}

type ComplianceAlert struct {
	ID             string
	StoryID        string
	FailedSites    []SiteVerification
	ElapsedMinutes float64
	RaisedAt       time.Time
}

type RevokeRequest struct {
	StoryID string
	SiteIDs []string
	Reason  string
}

func (r RevokeRequest) Validate() error {
	if strings.TrimSpace(r.StoryID) == "" {
		return fmt.Errorf("core: story id is required")
	}
	return nil
}

type SiteDeliveryResult struct {
	SiteID         string
	SiteName       string
	Success        bool
	HTTPStatus     int
	Error          string
	WebhookEventID string
}

type RevocationResult struct {
	StoryID               string
	Message               string
	Delivered             int
	Failed                int
	Results               []SiteDeliveryResult
	RevokedAt             time.Time
	VerificationScheduled bool
}

type VerifyRequest struct {
	StoryID             string
	SiteIDs             []string
	RevocationTimestamp time.Time
	// Recheck marks the follow-up pass scheduled at the compliance deadline.
	Recheck bool
}

func (r VerifyRequest) Validate() error {
	if strings.TrimSpace(r.StoryID) == "" {
		return fmt.Errorf("core: story id is required")
	}
	if len(normalizeIDs(r.SiteIDs)) == 0 {
		return fmt.Errorf("core: site ids are required")
	}
	if r.RevocationTimestamp.IsZero() {
		return fmt.Errorf("core: revocation timestamp is required")
	}
	return nil
}

type SiteVerification struct {
	SiteID       string
	SiteName     string
	Verified     bool
	Unverifiable bool
	HTTPStatus   int
	Error        string
}

type VerificationResult struct {
	StoryID          string
	AllVerified      bool
	WithinDeadline   bool
	ElapsedMinutes   float64
	Results          []SiteVerification
	AlertRaised      bool
	RecheckScheduled bool
}

type RetryRequest struct {
	BatchSize int
}

type RetryResult struct {
	Retried      int
	Succeeded    int
	StillFailing int
	Exhausted    int
}

type NotifyRequest struct {
	Event   EventType
	StoryID string
	SiteIDs []string
	Data    map[string]any
}

func (r NotifyRequest) Validate() error {
	if err := r.Event.Validate(); err != nil {
		return err
	}
	if r.Event == EventContentRevoked {
		return fmt.Errorf("%w: content_revoked must go through revocation", ErrInvalidEventType)
	}
	if strings.TrimSpace(r.StoryID) == "" {
		return fmt.Errorf("core: story id is required")
	}
	return nil
}

type NotifyResult struct {
	StoryID   string
	Event     EventType
	Message   string
	Delivered int
	Failed    int
	Results   []SiteDeliveryResult
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
