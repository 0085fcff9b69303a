package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-syndication/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ComplianceAlertStore persists raised alerts; it is the durable
// core.AlertPublisher.
type ComplianceAlertStore struct {
	db   *bun.DB
	repo repository.Repository[*complianceAlertRecord]
}

func NewComplianceAlertStore(db *bun.DB) (*ComplianceAlertStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*complianceAlertRecord](db, complianceAlertHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid compliance alert repository wiring: %w", err)
		}
	}
	return &ComplianceAlertStore{db: db, repo: repo}, nil
}

func (s *ComplianceAlertStore) PublishComplianceAlert(ctx context.Context, alert core.ComplianceAlert) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: compliance alert store is not configured")
	}
	if strings.TrimSpace(alert.StoryID) == "" {
		return fmt.Errorf("sqlstore: story id is required")
	}
	raisedAt := alert.RaisedAt.UTC()
	if raisedAt.IsZero() {
		raisedAt = time.Now().UTC()
	}
	id := strings.TrimSpace(alert.ID)
	if id == "" {
		id = uuid.NewString()
	}
	record := &complianceAlertRecord{
		ID:             id,
		StoryID:        strings.TrimSpace(alert.StoryID),
		FailedSites:    encodeSiteVerifications(alert.FailedSites),
		ElapsedMinutes: alert.ElapsedMinutes,
		RaisedAt:       raisedAt,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ComplianceAlertStore) ListByStory(ctx context.Context, storyID string) ([]core.ComplianceAlert, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: compliance alert store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("story_id", "=", strings.TrimSpace(storyID)),
		repository.OrderBy("raised_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ComplianceAlert, 0, len(records))
	for _, record := range records {
		out = append(out, core.ComplianceAlert{
			ID:             record.ID,
			StoryID:        record.StoryID,
			FailedSites:    decodeSiteVerifications(record.FailedSites),
			ElapsedMinutes: record.ElapsedMinutes,
			RaisedAt:       record.RaisedAt.UTC(),
		})
	}
	return out, nil
}

func encodeSiteVerifications(sites []core.SiteVerification) []map[string]any {
	out := make([]map[string]any, 0, len(sites))
	for _, site := range sites {
		entry := map[string]any{
			"site_id":      site.SiteID,
			"site_name":    site.SiteName,
			"verified":     site.Verified,
			"unverifiable": site.Unverifiable,
		}
		if site.HTTPStatus > 0 {
			entry["http_status"] = site.HTTPStatus
		}
		if site.Error != "" {
			entry["error"] = site.Error
		}
		out = append(out, entry)
	}
	return out
}

func decodeSiteVerifications(entries []map[string]any) []core.SiteVerification {
	out := make([]core.SiteVerification, 0, len(entries))
	for _, entry := range entries {
		site := core.SiteVerification{}
		site.SiteID, _ = entry["site_id"].(string)
		site.SiteName, _ = entry["site_name"].(string)
		site.Verified, _ = entry["verified"].(bool)
		site.Unverifiable, _ = entry["unverifiable"].(bool)
		site.Error, _ = entry["error"].(string)
		switch status := entry["http_status"].(type) {
		case float64:
			site.HTTPStatus = int(status)
		case int:
			site.HTTPStatus = status
		}
		out = append(out, site)
	}
	return out
}
