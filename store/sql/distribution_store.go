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

type DistributionStore struct {
	db   *bun.DB
	repo repository.Repository[*distributionRecord]
}

func NewDistributionStore(db *bun.DB) (*DistributionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*distributionRecord](db, distributionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid distribution repository wiring: %w", err)
		}
	}
	return &DistributionStore{db: db, repo: repo}, nil
}

// Create records a new active distribution of a story to a site.
func (s *DistributionStore) Create(ctx context.Context, storyID string, siteID string) (core.Distribution, error) {
	if s == nil || s.repo == nil {
		return core.Distribution{}, fmt.Errorf("sqlstore: distribution store is not configured")
	}
	storyID = strings.TrimSpace(storyID)
	siteID = strings.TrimSpace(siteID)
	if storyID == "" || siteID == "" {
		return core.Distribution{}, fmt.Errorf("sqlstore: story id and site id are required")
	}
	now := time.Now().UTC()
	record := &distributionRecord{
		ID:                 uuid.NewString(),
		StoryID:            storyID,
		SiteID:             siteID,
		Status:             string(core.DistributionStatusActive),
		VerificationStatus: string(core.VerificationStatusUnverified),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Distribution{}, err
	}
	return distributionRecordToDomain(*created), nil
}

func (s *DistributionStore) List(ctx context.Context, query core.DistributionQuery) ([]core.Distribution, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: distribution store is not configured")
	}
	storyID := strings.TrimSpace(query.StoryID)
	if storyID == "" {
		return nil, fmt.Errorf("sqlstore: story id is required")
	}
	var records []distributionRecord
	q := s.db.NewSelect().Model(&records).Where("story_id = ?", storyID)
	if siteIDs := trimIDs(query.SiteIDs); len(siteIDs) > 0 {
		q = q.Where("site_id IN (?)", bun.In(siteIDs))
	}
	if len(query.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statusStrings(query.Statuses)))
	}
	if err := q.OrderExpr("site_id ASC, created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Distribution, 0, len(records))
	for _, record := range records {
		out = append(out, distributionRecordToDomain(record))
	}
	return out, nil
}

// Transition applies next only when the row is in a status from which next
// is reachable.
func (s *DistributionStore) Transition(
	ctx context.Context,
	distributionID string,
	next core.DistributionStatus,
	at time.Time,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: distribution store is not configured")
	}
	return transitionDistribution(ctx, s.db, distributionID, next, at)
}

// ApplyVerification always stamps the verification result. The status change,
// when requested, goes through the same guard as Transition.
func (s *DistributionStore) ApplyVerification(ctx context.Context, update core.VerificationUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: distribution store is not configured")
	}
	id := strings.TrimSpace(update.DistributionID)
	if id == "" {
		return fmt.Errorf("sqlstore: distribution id is required")
	}
	verifiedAt := update.VerifiedAt.UTC()
	if verifiedAt.IsZero() {
		verifiedAt = time.Now().UTC()
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*distributionRecord)(nil)).
			Set("verification_status = ?", string(update.VerificationStatus)).
			Set("last_verified_at = ?", verifiedAt).
			Set("updated_at = ?", verifiedAt).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", core.ErrDistributionNotFound, id)
		}
		if update.Status == "" {
			return nil
		}
		_, err = transitionDistribution(ctx, tx, id, update.Status, verifiedAt)
		return err
	})
}

func transitionDistribution(
	ctx context.Context,
	db bun.IDB,
	distributionID string,
	next core.DistributionStatus,
	at time.Time,
) (bool, error) {
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" {
		return false, fmt.Errorf("sqlstore: distribution id is required")
	}
	sources := core.DistributionSourceStatuses(next)
	if len(sources) == 0 {
		return false, fmt.Errorf("%w: nothing transitions to %q", core.ErrInvalidDistributionTransition, next)
	}
	at = at.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	q := db.NewUpdate().
		Model((*distributionRecord)(nil)).
		Set("status = ?", string(next)).
		Set("updated_at = ?", at).
		Where("id = ?", distributionID).
		Where("status IN (?)", bun.In(statusStrings(sources)))
	if next == core.DistributionStatusRemoved {
		q = q.Set("removed_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func distributionRecordToDomain(record distributionRecord) core.Distribution {
	return core.Distribution{
		ID:                 record.ID,
		StoryID:            record.StoryID,
		SiteID:             record.SiteID,
		Status:             core.DistributionStatus(record.Status),
		VerificationStatus: core.VerificationStatus(record.VerificationStatus),
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
		RemovedAt:          cloneTimePointer(record.RemovedAt),
		LastVerifiedAt:     cloneTimePointer(record.LastVerifiedAt),
	}
}

func statusStrings(statuses []core.DistributionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
