package models

import "time"

// Plan is a pricing tier. Rows are seeded at bootstrap and treated as
// read-only afterwards; changing a tenant's plan re-points the foreign key
// on the tenant, it never mutates the plan row.
type Plan struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Slug           string `gorm:"uniqueIndex;not null" json:"slug"`
	Name           string `gorm:"not null" json:"name"`
	PriceCents     int    `gorm:"not null;default:0" json:"price_cents"`
	QueryQPSLimit  int    `gorm:"not null" json:"query_qps_limit"`
	IngestQPSLimit int    `gorm:"not null" json:"ingest_qps_limit"`

	// Nil means unlimited.
	ProjectLimit          *int   `json:"project_limit"`
	VectorLimitPerProject *int64 `json:"vector_limit_per_project"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}
