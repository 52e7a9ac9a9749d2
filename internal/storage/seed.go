package storage

import (
	"errors"

	"gorm.io/gorm"

	"github.com/vectorlab/quotad/internal/models"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// DefaultPlans is the canonical plan catalog. Slugs are the stable keys;
// re-running the seed updates limits in place without touching tenants.
var DefaultPlans = []models.Plan{
	{
		Slug:                  "tinkering",
		Name:                  "Tinkering",
		PriceCents:            500,
		QueryQPSLimit:         5,
		IngestQPSLimit:        5,
		ProjectLimit:          intPtr(3),
		VectorLimitPerProject: int64Ptr(10_000),
	},
	{
		Slug:                  "building",
		Name:                  "Building",
		PriceCents:            2_000,
		QueryQPSLimit:         10,
		IngestQPSLimit:        10,
		ProjectLimit:          intPtr(20),
		VectorLimitPerProject: int64Ptr(100_000),
	},
	{
		Slug:                  "scale",
		Name:                  "Scale",
		PriceCents:            5_000,
		QueryQPSLimit:         100,
		IngestQPSLimit:        100,
		ProjectLimit:          nil,
		VectorLimitPerProject: int64Ptr(250_000),
	},
}

// SeedPlans ensures the canonical plan definitions exist, creating missing
// rows and updating limits on existing ones. Idempotent.
func (p *Postgres) SeedPlans() error {
	for _, plan := range DefaultPlans {
		var existing models.Plan
		err := p.DB.Where("slug = ?", plan.Slug).First(&existing).Error
		if err == nil {
			updates := map[string]interface{}{
				"name":                     plan.Name,
				"price_cents":              plan.PriceCents,
				"query_qps_limit":          plan.QueryQPSLimit,
				"ingest_qps_limit":         plan.IngestQPSLimit,
				"project_limit":            plan.ProjectLimit,
				"vector_limit_per_project": plan.VectorLimitPerProject,
			}
			if err := p.DB.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := p.DB.Create(&plan).Error; err != nil {
			return err
		}
	}
	return nil
}
