package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/quota"
	"github.com/vectorlab/quotad/internal/storage"
)

// UsageRepository is the Postgres-backed quota.UsageStore. MutateUsage locks
// the usage row FOR UPDATE and resolves the owning plan's per-project vector
// cap inside the same transaction, so the capacity check and the counter
// change commit or roll back together.
type UsageRepository struct {
	db *storage.Postgres
}

var _ quota.UsageStore = (*UsageRepository)(nil)

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) MutateUsage(ctx context.Context, projectID uuid.UUID, fn func(u *models.ProjectUsage, vectorLimit *int64) error) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var usage models.ProjectUsage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ?", projectID).
			First(&usage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quota.ErrProjectMissing
		}
		if err != nil {
			return err
		}

		limit, err := vectorLimitForProject(tx, projectID)
		if err != nil {
			return err
		}

		if err := fn(&usage, limit); err != nil {
			return err
		}

		return tx.Model(&models.ProjectUsage{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"vector_count":          usage.VectorCount,
				"total_queries":         usage.TotalQueries,
				"total_ingest_requests": usage.TotalIngestRequests,
			}).Error
	})
}

// vectorLimitForProject resolves the per-project cap from the owning
// tenant's current plan. Plan rows are immutable so no lock is needed here.
func vectorLimitForProject(tx *gorm.DB, projectID uuid.UUID) (*int64, error) {
	var plan models.Plan
	err := tx.Table("plans").
		Select("plans.*").
		Joins("JOIN tenants ON tenants.plan_id = plans.id").
		Joins("JOIN projects ON projects.tenant_id = tenants.id").
		Where("projects.id = ?", projectID).
		Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quota.ErrProjectMissing
	}
	if err != nil {
		return nil, err
	}
	return plan.VectorLimitPerProject, nil
}

func (r *UsageRepository) AddQueries(ctx context.Context, projectID uuid.UUID, n int64) error {
	return r.bump(ctx, projectID, "total_queries", n)
}

func (r *UsageRepository) AddIngests(ctx context.Context, projectID uuid.UUID, n int64) error {
	return r.bump(ctx, projectID, "total_ingest_requests", n)
}

func (r *UsageRepository) bump(ctx context.Context, projectID uuid.UUID, column string, n int64) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.ProjectUsage{}).
		Where("project_id = ?", projectID).
		UpdateColumn(column, gorm.Expr(column+" + ?", n))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return quota.ErrProjectMissing
	}
	return nil
}

func (r *UsageRepository) Report(ctx context.Context, projectID uuid.UUID) (*models.ProjectUsage, error) {
	var usage models.ProjectUsage
	err := r.db.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quota.ErrProjectMissing
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}
