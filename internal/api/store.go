package api

import (
	"context"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/store"
)

// Store is the persistence surface the handlers consume. Satisfied by
// *store.CachedStore.
type Store interface {
	store.SessionStore

	CreatePair(ctx context.Context, pair *models.CharacterPair) error
	ListPairs(ctx context.Context) ([]models.PairSummary, error)
	UpdatePair(ctx context.Context, pair *models.CharacterPair) error
	DeletePair(ctx context.Context, pairID string) error

	ListConversations(ctx context.Context, pairID string) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, convID, pairID string) error

	SaveSystemPrompt(ctx context.Context, text string) error
	SaveProviderConfig(ctx context.Context, cfg *models.ProviderConfig) error
}
