package store

import (
	"context"
	"fmt"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/pkg/secrets"
)

// SecretResolvingStore fills in provider credentials from the secrets
// manager when a stored config carries no API key, so operators can
// keep credentials in Vault or the environment instead of the
// database. Lookup key: PROVIDER_API_KEY_<slot>.
type SecretResolvingStore struct {
	SessionStore
}

// NewSecretResolvingStore wraps a SessionStore.
func NewSecretResolvingStore(inner SessionStore) *SecretResolvingStore {
	return &SecretResolvingStore{SessionStore: inner}
}

func (s *SecretResolvingStore) LoadProviderConfig(ctx context.Context, slot int) (*models.ProviderConfig, error) {
	cfg, err := s.SessionStore.LoadProviderConfig(ctx, slot)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		key := fmt.Sprintf("PROVIDER_API_KEY_%d", slot)
		cfg.APIKey = secrets.GetSecretWithDefault(ctx, key, "")
	}
	return cfg, nil
}
