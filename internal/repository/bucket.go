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

// BucketRepository is the Postgres-backed quota.BucketStore. Every Mutate
// is one transaction holding SELECT ... FOR UPDATE on the bucket row, which
// is what serializes concurrent admission checks across replicas.
type BucketRepository struct {
	db *storage.Postgres
}

var _ quota.BucketStore = (*BucketRepository)(nil)

func NewBucketRepository(db *storage.Postgres) *BucketRepository {
	return &BucketRepository{db: db}
}

func (r *BucketRepository) Mutate(ctx context.Context, tenantID uuid.UUID, kind quota.Kind, fn func(b *models.RateLimitBucket) error) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bucket models.RateLimitBucket
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND kind = ?", tenantID, string(kind)).
			First(&bucket).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quota.ErrBucketMissing
		}
		if err != nil {
			return err
		}

		if err := fn(&bucket); err != nil {
			return err
		}

		return tx.Model(&models.RateLimitBucket{}).
			Where("id = ?", bucket.ID).
			Updates(map[string]interface{}{
				"capacity":       bucket.Capacity,
				"tokens":         bucket.Tokens,
				"last_refill_at": bucket.LastRefillAt,
			}).Error
	})
}

func (r *BucketRepository) CreateIfAbsent(ctx context.Context, b *models.RateLimitBucket) (bool, error) {
	result := r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(b)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *BucketRepository) UpdateLimits(ctx context.Context, tenantID uuid.UUID, kind quota.Kind, capacity float64) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.RateLimitBucket{}).
		Where("tenant_id = ? AND kind = ?", tenantID, string(kind)).
		Updates(map[string]interface{}{
			"capacity": capacity,
			"tokens":   gorm.Expr("LEAST(tokens, ?)", capacity),
		}).Error
}
