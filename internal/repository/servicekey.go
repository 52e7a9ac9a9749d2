package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/storage"
)

type ServiceKeyRepository struct {
	db *storage.Postgres
}

func NewServiceKeyRepository(db *storage.Postgres) *ServiceKeyRepository {
	return &ServiceKeyRepository{db: db}
}

func (r *ServiceKeyRepository) Create(ctx context.Context, key *models.ServiceKey) error {
	return r.db.DB.WithContext(ctx).Create(key).Error
}

func (r *ServiceKeyRepository) FindByHash(ctx context.Context, hash string) (*models.ServiceKey, error) {
	var key models.ServiceKey
	err := r.db.DB.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true).
		First(&key).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &key, err
}

func (r *ServiceKeyRepository) List(ctx context.Context) ([]models.ServiceKey, error) {
	var keys []models.ServiceKey
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}

func (r *ServiceKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.ServiceKey{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

func (r *ServiceKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ServiceKey{}).Error
}
