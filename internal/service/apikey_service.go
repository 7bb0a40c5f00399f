package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/repository"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/observability"

	"github.com/google/uuid"
)

// DefaultKeyName is used when a key is created without a name.
const DefaultKeyName = "Default Key"

const keyEntropyBytes = 32

// APIKeyService issues, lists, revokes and verifies API keys.
type APIKeyService struct {
	repo         repository.APIKeyRepository
	prefix       string
	touchTimeout time.Duration
	log          *logger.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	random       func([]byte) (int, error)

	// touches tracks detached last-used updates so shutdown can drain them.
	touches sync.WaitGroup
}

// NewAPIKeyService creates an API key service.
func NewAPIKeyService(repo repository.APIKeyRepository, prefix string, touchTimeout time.Duration, log *logger.Logger, metrics *observability.Metrics) *APIKeyService {
	if touchTimeout <= 0 {
		touchTimeout = 5 * time.Second
	}
	return &APIKeyService{
		repo:         repo,
		prefix:       prefix,
		touchTimeout: touchTimeout,
		log:          log,
		metrics:      metrics,
		now:          time.Now,
		random:       rand.Read,
	}
}

// HashKey returns the lowercase hex SHA-256 digest stored for a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Generate creates a key for principalID. The raw key appears only in the
// returned value.
func (s *APIKeyService) Generate(ctx context.Context, principalID, name string) (*models.CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultKeyName
	}

	secret := make([]byte, keyEntropyBytes)
	if _, err := s.random(secret); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	raw := s.prefix + hex.EncodeToString(secret)

	key := &models.APIKey{
		UserID:  principalID,
		KeyHash: HashKey(raw),
		Name:    name,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}

	s.metrics.APIKeyEvent(ctx, "created")
	s.log.Info("API key created", "principal_id", principalID, "key_id", key.ID)

	return &models.CreatedAPIKey{
		ID:        key.ID,
		Key:       raw,
		Name:      key.Name,
		CreatedAt: key.CreatedAt,
	}, nil
}

// List returns principalID's keys, newest first, without secrets.
func (s *APIKeyService) List(ctx context.Context, principalID string) ([]models.APIKeyResponse, error) {
	keys, err := s.repo.ListByOwner(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	out := make([]models.APIKeyResponse, len(keys))
	for i := range keys {
		out[i] = keys[i].ToResponse()
	}
	return out, nil
}

// Delete revokes a key owned by principalID. Unknown, malformed or foreign
// ids are a silent no-op.
func (s *APIKeyService) Delete(ctx context.Context, principalID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	n, err := s.repo.DeleteOwned(ctx, principalID, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if n > 0 {
		s.metrics.APIKeyEvent(ctx, "deleted")
		s.log.Info("API key deleted", "principal_id", principalID, "key_id", id)
	}
	return nil
}

// Verify resolves a raw bearer key to its owner. A missing key and a failed
// lookup look the same to the caller. On success last_used_at is updated in
// the background; that update never affects the result.
func (s *APIKeyService) Verify(ctx context.Context, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	key, err := s.repo.FindByHash(ctx, HashKey(raw))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("API key lookup failed", "error", err.Error())
		}
		return "", false
	}

	s.metrics.APIKeyEvent(ctx, "verified")
	s.touch(ctx, key.ID)
	return key.UserID, true
}

func (s *APIKeyService) touch(parent context.Context, keyID string) {
	at := s.now().UTC()
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.touchTimeout)
		defer cancel()

		if err := s.repo.TouchLastUsed(ctx, keyID, at); err != nil {
			s.metrics.TouchFailure(ctx)
			s.log.Warn("Failed to record API key use", "key_id", keyID, "error", err.Error())
		}
	}()
}

// Wait blocks until every pending last-used update has finished.
func (s *APIKeyService) Wait() {
	s.touches.Wait()
}
