package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookRecord struct {
	bun.BaseModel `bun:"table:webhooks,alias:wh"`

	ID            string    `bun:"id,pk"`
	TargetKind    string    `bun:"target_kind,notnull"`
	TargetID      string    `bun:"target_id,notnull"`
	RegistrantID  string    `bun:"registrant_id,notnull"`
	DeliveryURL   string    `bun:"delivery_url,notnull"`
	Active        bool      `bun:"active,notnull"`
	Secret        *string   `bun:"secret"`
	EventTypes    []string  `bun:"event_types,type:jsonb,notnull"`
	GitRefPattern *string   `bun:"git_ref_pattern"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryJobRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_jobs,alias:wdj"`

	ID             string         `bun:"id,pk"`
	WebhookID      string         `bun:"webhook_id,notnull"`
	JobType        string         `bun:"job_type,notnull"`
	Status         string         `bun:"status,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	Result         map[string]any `bun:"result,type:jsonb"`
	DateFirstSent  *time.Time     `bun:"date_first_sent,nullzero"`
	DateSent       *time.Time     `bun:"date_sent,nullzero"`
	DateFinished   *time.Time     `bun:"date_finished,nullzero"`
	ScheduledStart *time.Time     `bun:"scheduled_start,nullzero"`
	AttemptCount   int            `bun:"attempt_count,notnull"`
	ClaimCount     int            `bun:"claim_count,notnull"`
	LeaseExpiresAt *time.Time     `bun:"lease_expires_at,nullzero"`
	LastError      string         `bun:"last_error,notnull"`
	DispatchedAt   *time.Time     `bun:"dispatched_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
