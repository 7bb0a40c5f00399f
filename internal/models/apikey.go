package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey authenticates the browser extension. Only the SHA-256 digest of the
// raw key is stored.
type APIKey struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"type:uuid;not null;index" json:"-"`
	KeyHash    string     `gorm:"not null;uniqueIndex:idx_api_keys_key_hash" json:"-"` // never expose
	Name       string     `gorm:"not null" json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// TableName matches the migration.
func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate assigns a UUID when the caller did not.
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// APIKeyResponse is what listing keys returns: no raw key, no digest.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// ToResponse strips the digest and owner.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// CreatedAPIKey is returned exactly once, when the key is generated.
type CreatedAPIKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAPIKeyRequest is the body of POST /api/keys.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}
