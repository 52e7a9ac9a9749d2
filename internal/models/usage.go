package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectUsage holds per-project counters. VectorCount is the authoritative
// live-vector count used for capacity admission; the cumulative totals are
// for reporting only and are never consulted for admission decisions.
type ProjectUsage struct {
	ProjectID           uuid.UUID `gorm:"type:uuid;primary_key" json:"project_id"`
	VectorCount         int64     `gorm:"not null;default:0" json:"vector_count"`
	TotalQueries        int64     `gorm:"not null;default:0" json:"total_queries"`
	TotalIngestRequests int64     `gorm:"not null;default:0" json:"total_ingest_requests"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (ProjectUsage) TableName() string {
	return "project_usage"
}
