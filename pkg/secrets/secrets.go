// Package secrets resolves sensitive settings from Vault with an
// environment fallback.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)
}

var ErrSecretNotFound = errors.New("secret not found")

// EnvManager reads secrets from environment variables: "session.jwt-secret"
// is read from SESSION_JWT_SECRET.
type EnvManager struct{}

func (EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	value := os.Getenv(EnvName(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// EnvName maps a secret key to its environment variable name.
func EnvName(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// Resolve returns the secret, or fallback when no source has it.
func Resolve(ctx context.Context, m Manager, key, fallback string) (string, error) {
	value, err := m.GetSecret(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
