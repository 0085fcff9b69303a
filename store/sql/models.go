package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type siteRecord struct {
	bun.BaseModel `bun:"table:syndication_sites,alias:ss"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull"`
	WebhookURL string    `bun:"webhook_url,notnull"`
	APIBaseURL string    `bun:"api_base_url,notnull"`
	Status     string    `bun:"status,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type distributionRecord struct {
	bun.BaseModel `bun:"table:syndication_distributions,alias:sd"`

	ID                 string     `bun:"id,pk"`
	StoryID            string     `bun:"story_id,notnull"`
	SiteID             string     `bun:"site_id,notnull"`
	Status             string     `bun:"status,notnull"`
	VerificationStatus string     `bun:"verification_status,notnull"`
	RemovedAt          *time.Time `bun:"removed_at,nullzero"`
	LastVerifiedAt     *time.Time `bun:"last_verified_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// webhookEventRecord keeps the signed payload as text so retries replay the
// exact bytes that were signed.
type webhookEventRecord struct {
	bun.BaseModel `bun:"table:syndication_webhook_events,alias:swe"`

	ID           string     `bun:"id,pk"`
	SiteID       string     `bun:"site_id,notnull"`
	StoryID      string     `bun:"story_id,notnull"`
	EventType    string     `bun:"event_type,notnull"`
	TargetURL    string     `bun:"target_url,notnull"`
	Payload      string     `bun:"payload,notnull"`
	Signature    string     `bun:"signature,notnull"`
	Status       string     `bun:"status,notnull"`
	HTTPStatus   *int       `bun:"http_status"`
	ResponseBody string     `bun:"response_body,notnull"`
	ErrorMessage string     `bun:"error_message,notnull"`
	RetryCount   int        `bun:"retry_count,notnull"`
	MaxRetries   int        `bun:"max_retries,notnull"`
	NextRetryAt  *time.Time `bun:"next_retry_at,nullzero"`
	SentAt       *time.Time `bun:"sent_at,nullzero"`
	DeliveredAt  *time.Time `bun:"delivered_at,nullzero"`
	FailedAt     *time.Time `bun:"failed_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:syndication_jobs,alias:sj"`

	ID             string         `bun:"id,pk"`
	JobID          string         `bun:"job_id,notnull"`
	ScriptPath     string         `bun:"script_path,notnull"`
	Parameters     map[string]any `bun:"parameters,type:jsonb,notnull"`
	IdempotencyKey *string        `bun:"idempotency_key"`
	DedupPolicy    string         `bun:"dedup_policy,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	AvailableAt    time.Time      `bun:"available_at,notnull"`
	LeaseUntil     *time.Time     `bun:"lease_until,nullzero"`
	LastError      string         `bun:"last_error,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type complianceAlertRecord struct {
	bun.BaseModel `bun:"table:syndication_compliance_alerts,alias:sca"`

	ID             string           `bun:"id,pk"`
	StoryID        string           `bun:"story_id,notnull"`
	FailedSites    []map[string]any `bun:"failed_sites,type:jsonb,notnull"`
	ElapsedMinutes float64          `bun:"elapsed_minutes,notnull"`
	RaisedAt       time.Time        `bun:"raised_at,notnull"`
	CreatedAt      time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
