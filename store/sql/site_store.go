package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-syndication/core"
	"github.com/uptrace/bun"
)

// SiteStore is the SQL site registry. The pipeline only reads from it;
// Upsert exists for seeding and operator tooling.
type SiteStore struct {
	db   *bun.DB
	repo repository.Repository[*siteRecord]
}

func NewSiteStore(db *bun.DB) (*SiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*siteRecord](db, siteHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid site repository wiring: %w", err)
		}
	}
	return &SiteStore{db: db, repo: repo}, nil
}

func (s *SiteStore) Upsert(ctx context.Context, site core.Site) (core.Site, error) {
	if s == nil || s.db == nil {
		return core.Site{}, fmt.Errorf("sqlstore: site store is not configured")
	}
	site.ID = strings.TrimSpace(site.ID)
	if site.ID == "" {
		return core.Site{}, fmt.Errorf("sqlstore: site id is required")
	}
	if site.Status == "" {
		site.Status = core.SiteStatusActive
	}
	if site.Status != core.SiteStatusActive && site.Status != core.SiteStatusInactive {
		return core.Site{}, fmt.Errorf("sqlstore: invalid site status %q", site.Status)
	}
	now := time.Now().UTC()
	record := &siteRecord{
		ID:         site.ID,
		Name:       strings.TrimSpace(site.Name),
		WebhookURL: strings.TrimSpace(site.WebhookURL),
		APIBaseURL: strings.TrimSpace(site.APIBaseURL),
		Status:     string(site.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if record.Name == "" {
		record.Name = record.ID
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("webhook_url = EXCLUDED.webhook_url").
		Set("api_base_url = EXCLUDED.api_base_url").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Site{}, err
	}
	return s.Get(ctx, site.ID)
}

func (s *SiteStore) Get(ctx context.Context, id string) (core.Site, error) {
	if s == nil || s.db == nil {
		return core.Site{}, fmt.Errorf("sqlstore: site store is not configured")
	}
	record := new(siteRecord)
	err := s.db.NewSelect().Model(record).Where("id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Site{}, fmt.Errorf("%w: %s", core.ErrSiteNotFound, id)
		}
		return core.Site{}, err
	}
	return siteRecordToDomain(*record), nil
}

func (s *SiteStore) List(ctx context.Context) ([]core.Site, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: site store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]core.Site, 0, len(records))
	for _, record := range records {
		out = append(out, siteRecordToDomain(*record))
	}
	return out, nil
}

// GetSites returns the registered sites among ids; unknown ids are absent
// from the map rather than reported as errors.
func (s *SiteStore) GetSites(ctx context.Context, ids []string) (map[string]core.Site, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: site store is not configured")
	}
	ids = trimIDs(ids)
	out := make(map[string]core.Site, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var records []siteRecord
	if err := s.db.NewSelect().Model(&records).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, record := range records {
		out[record.ID] = siteRecordToDomain(record)
	}
	return out, nil
}

func siteRecordToDomain(record siteRecord) core.Site {
	return core.Site{
		ID:         record.ID,
		Name:       record.Name,
		WebhookURL: record.WebhookURL,
		APIBaseURL: record.APIBaseURL,
		Status:     core.SiteStatus(record.Status),
		CreatedAt:  record.CreatedAt.UTC(),
		UpdatedAt:  record.UpdatedAt.UTC(),
	}
}

func trimIDs(ids []string) []string {
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
