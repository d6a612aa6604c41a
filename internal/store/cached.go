package store

import (
	"context"
	"strconv"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/pkg/cache"
)

// CachedStore decorates GormStore with a read-through cache on the
// records the turn loop re-reads constantly: pairs, provider configs,
// and the system prompt. Conversations are never cached; they are the
// mutable record the loop owns.
type CachedStore struct {
	*GormStore
	cache *cache.Cache
}

// NewCachedStore wraps a GormStore.
func NewCachedStore(inner *GormStore, c *cache.Cache) *CachedStore {
	return &CachedStore{GormStore: inner, cache: c}
}

func pairKey(pairID string) string { return "pair:" + pairID }
func slotKey(slot int) string      { return "provider-config:" + strconv.Itoa(slot) }

const promptKey = "system-prompt"

func (s *CachedStore) LoadPair(ctx context.Context, pairID string) (*models.CharacterPair, error) {
	if v, ok := s.cache.Get(pairKey(pairID)); ok {
		pair := v.(models.CharacterPair)
		return &pair, nil
	}
	pair, err := s.GormStore.LoadPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(pairKey(pairID), *pair)
	return pair, nil
}

func (s *CachedStore) LoadProviderConfig(ctx context.Context, slot int) (*models.ProviderConfig, error) {
	if v, ok := s.cache.Get(slotKey(slot)); ok {
		cfg := v.(models.ProviderConfig)
		return &cfg, nil
	}
	cfg, err := s.GormStore.LoadProviderConfig(ctx, slot)
	if err != nil {
		return nil, err
	}
	s.cache.Set(slotKey(slot), *cfg)
	return cfg, nil
}

func (s *CachedStore) LoadSystemPrompt(ctx context.Context) (string, error) {
	if v, ok := s.cache.Get(promptKey); ok {
		return v.(string), nil
	}
	prompt, err := s.GormStore.LoadSystemPrompt(ctx)
	if err != nil {
		return "", err
	}
	s.cache.Set(promptKey, prompt)
	return prompt, nil
}

func (s *CachedStore) SaveSystemPrompt(ctx context.Context, text string) error {
	s.cache.Delete(promptKey)
	return s.GormStore.SaveSystemPrompt(ctx, text)
}

func (s *CachedStore) SaveProviderConfig(ctx context.Context, cfg *models.ProviderConfig) error {
	s.cache.Delete(slotKey(cfg.Slot))
	return s.GormStore.SaveProviderConfig(ctx, cfg)
}

func (s *CachedStore) UpdatePair(ctx context.Context, pair *models.CharacterPair) error {
	s.cache.Delete(pairKey(pair.ID))
	return s.GormStore.UpdatePair(ctx, pair)
}

func (s *CachedStore) DeletePair(ctx context.Context, pairID string) error {
	s.cache.Delete(pairKey(pairID))
	return s.GormStore.DeletePair(ctx, pairID)
}

func (s *CachedStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	// SaveConversation touches the pair's last_conversation_id.
	s.cache.Delete(pairKey(conv.CharacterPairID))
	return s.GormStore.SaveConversation(ctx, conv)
}
