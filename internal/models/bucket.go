package models

import (
	"time"

	"github.com/google/uuid"
)

// RateLimitBucket is the durable token-bucket state for one (tenant, kind)
// pair. Capacity is tokens per second from the tenant's plan at the last
// sync; it doubles as the burst ceiling, so a bucket never holds more than
// one second's worth of tokens. Rows are created lazily on first admission
// check and rewritten whenever the tenant's plan changes.
type RateLimitBucket struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_buckets_tenant_kind" json:"tenant_id"`
	Kind         string    `gorm:"not null;uniqueIndex:uq_buckets_tenant_kind" json:"kind"`
	Capacity     float64   `gorm:"not null" json:"capacity"`
	Tokens       float64   `gorm:"not null" json:"tokens"`
	LastRefillAt time.Time `gorm:"not null" json:"last_refill_at"`
}

func (RateLimitBucket) TableName() string {
	return "rate_limit_buckets"
}
