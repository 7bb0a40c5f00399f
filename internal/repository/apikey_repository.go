package repository

import (
	"context"
	"errors"
	"time"

	"context-teleporter/backend/internal/models"

	"gorm.io/gorm"
)

type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	ListByOwner(ctx context.Context, userID string) ([]models.APIKey, error)
	// DeleteOwned returns the number of rows removed; zero is not an error.
	DeleteOwned(ctx context.Context, userID, id string) (int64, error)
}

type GormAPIKeyRepository struct {
	db *gorm.DB
}

func NewGormAPIKeyRepository(db *gorm.DB) *GormAPIKeyRepository {
	return &GormAPIKeyRepository{db: db}
}

func (r *GormAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *GormAPIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).
		Select("id", "user_id").
		Where("key_hash = ?", keyHash).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *GormAPIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// ListByOwner never selects key_hash.
func (r *GormAPIKeyRepository) ListByOwner(ctx context.Context, userID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Select("id", "name", "created_at", "last_used_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&keys).Error
	return keys, err
}

func (r *GormAPIKeyRepository) DeleteOwned(ctx context.Context, userID, id string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.APIKey{})
	return result.RowsAffected, result.Error
}
