package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/storage"
)

// ErrProjectLimitReached means the tenant's plan caps how many projects it
// may own and the cap is already met.
var ErrProjectLimitReached = errors.New("repository: project limit reached for plan")

type ProjectRepository struct {
	db *storage.Postgres
}

func NewProjectRepository(db *storage.Postgres) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts the project and its zeroed usage row in one transaction.
// The tenant row is locked first so the plan's project-count cap cannot be
// overshot by concurrent creations.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant models.Tenant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", project.TenantID).
			First(&tenant).Error
		if err != nil {
			return err
		}

		var plan models.Plan
		if err := tx.Where("id = ?", tenant.PlanID).First(&plan).Error; err != nil {
			return err
		}

		if plan.ProjectLimit != nil {
			var count int64
			err := tx.Model(&models.Project{}).
				Where("tenant_id = ?", project.TenantID).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count >= int64(*plan.ProjectLimit) {
				return ErrProjectLimitReached
			}
		}

		if err := tx.Create(project).Error; err != nil {
			return err
		}

		usage := models.ProjectUsage{ProjectID: project.ID}
		return tx.Create(&usage).Error
	})
}

func (r *ProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&project).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &project, err
}

func (r *ProjectRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.DB.WithContext(ctx).
		Model(&models.Project{}).
		Where("is_active = ?", true).
		Pluck("id", &ids).Error

	return ids, err
}

// Delete removes the project and its usage row together.
func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectUsage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Project{}).Error
	})
}
