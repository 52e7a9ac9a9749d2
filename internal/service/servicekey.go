package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/repository"
	"github.com/vectorlab/quotad/internal/storage"
)

// ServiceKeyService issues and validates the keys internal platform
// services use against the quota API. Lookups are cached in Redis; the
// cache only ever shortcuts authentication, never admission state.
type ServiceKeyService struct {
	repository *repository.ServiceKeyRepository
	redis      *storage.RedisClient
}

func NewServiceKeyService(repo *repository.ServiceKeyRepository, redis *storage.RedisClient) *ServiceKeyService {
	return &ServiceKeyService{
		repository: repo,
		redis:      redis,
	}
}

func (s *ServiceKeyService) Create(ctx context.Context, name, createdBy string) (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	key := "qd_" + base64.URLEncoding.EncodeToString(keyBytes)

	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	serviceKey := models.ServiceKey{
		KeyHash:   keyHash,
		Name:      name,
		CreatedBy: createdBy,
		IsActive:  true,
	}

	if err := s.repository.Create(ctx, &serviceKey); err != nil {
		return "", fmt.Errorf("failed to create service key: %w", err)
	}

	// Return plain key (only time it's visible)
	return key, nil
}

func (s *ServiceKeyService) Validate(ctx context.Context, key string) (*models.ServiceKey, error) {
	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	cacheKey := fmt.Sprintf("servicekey:cache:%s", keyHash)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var serviceKey models.ServiceKey
			if err := json.Unmarshal([]byte(cached), &serviceKey); err == nil {
				return &serviceKey, nil
			}
		}
	}

	serviceKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	if serviceKey == nil {
		return nil, nil
	}

	if s.redis != nil {
		keyJSON, _ := json.Marshal(serviceKey)
		s.redis.Set(ctx, cacheKey, keyJSON, 5*time.Minute)
	}

	return serviceKey, nil
}

func (s *ServiceKeyService) List(ctx context.Context) ([]models.ServiceKey, error) {
	return s.repository.List(ctx)
}

func (s *ServiceKeyService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repository.Delete(ctx, id)
}

func (s *ServiceKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID) {
	// Best effort - don't block or fail the request
	s.repository.UpdateLastUsed(ctx, id)
}
