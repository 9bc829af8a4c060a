package sqlstore

import (
	"time"

	"github.com/goliatone/go-certidigital/emission"
	"github.com/uptrace/bun"
)

type ledgerEntryRecord struct {
	bun.BaseModel `bun:"table:certidigital_ledger_entries,alias:cle"`

	ID         string    `bun:"id,pk"`
	Scope      string    `bun:"scope,notnull"`
	EntityKind string    `bun:"entity_kind,notnull"`
	OID        int64     `bun:"oid,notnull"`
	Position   int       `bun:"position,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type checkpointRecord struct {
	bun.BaseModel `bun:"table:certidigital_emission_checkpoints,alias:cec"`

	ID              string                `bun:"id,pk"`
	BlockID         string                `bun:"block_id,notnull"`
	CredentialID    int64                 `bun:"credential_id,notnull"`
	IssuingCenterID int64                 `bun:"issuing_center_id,notnull"`
	Stage           string                `bun:"stage,notnull"`
	Attempts        int                   `bun:"attempts,notnull"`
	Report          emission.StatusReport `bun:"report,type:jsonb,notnull"`
	LastError       string                `bun:"last_error,notnull"`
	CreatedAt       time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time             `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:certidigital_rate_limit_states,alias:crl"`

	ID             string     `bun:"id,pk"`
	Host           string     `bun:"host,notnull"`
	Bucket         string     `bun:"bucket,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterMS   *int64     `bun:"retry_after_ms"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
