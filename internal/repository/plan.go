package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/quota"
	"github.com/vectorlab/quotad/internal/storage"
)

type PlanRepository struct {
	db *storage.Postgres
}

var _ quota.PlanSource = (*PlanRepository)(nil)

func NewPlanRepository(db *storage.Postgres) *PlanRepository {
	return &PlanRepository{db: db}
}

// PlanForTenant fetches the plan currently attached to a tenant. Always a
// fresh read; plan changes propagate without cache invalidation.
func (r *PlanRepository) PlanForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.DB.WithContext(ctx).
		Table("plans").
		Select("plans.*").
		Joins("JOIN tenants ON tenants.plan_id = plans.id").
		Where("tenants.id = ?", tenantID).
		Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quota.ErrTenantMissing
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) FindBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.DB.WithContext(ctx).
		Where("slug = ?", slug).
		First(&plan).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &plan, err
}

func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.DB.WithContext(ctx).
		Order("price_cents ASC").
		Find(&plans).Error

	return plans, err
}
