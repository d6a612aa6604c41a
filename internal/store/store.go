// Package store is the persistence boundary consumed by the turn
// scheduler and the management API.
package store

import (
	"context"
	"errors"

	"llm-duet/backend/internal/models"
)

// Sentinel errors surfaced across the adapter boundary. Callers match
// with errors.Is and map them onto the API error taxonomy.
var (
	// ErrNotFound marks a missing pair or conversation record.
	ErrNotFound = errors.New("record not found")
	// ErrNotConfigured marks a provider slot with no stored config.
	ErrNotConfigured = errors.New("provider slot not configured")
)

// SessionStore is the narrow interface the turn scheduler drives.
// Single-record atomicity only; no cross-call transactions required.
type SessionStore interface {
	// LoadPair returns the pair or ErrNotFound.
	LoadPair(ctx context.Context, pairID string) (*models.CharacterPair, error)

	// LoadProviderConfig returns the config for a slot or ErrNotConfigured.
	LoadProviderConfig(ctx context.Context, slot int) (*models.ProviderConfig, error)

	// LoadConversation returns the conversation, with messages in
	// transcript order, or ErrNotFound. The pair id scopes the lookup.
	LoadConversation(ctx context.Context, convID, pairID string) (*models.Conversation, error)

	// LoadSystemPrompt returns the global instruction template, or ""
	// when none has been stored.
	LoadSystemPrompt(ctx context.Context) (string, error)

	// AppendMessage persists one generated message and the updated
	// conversation counters in a single write. Called after every
	// successful turn so an aborted run keeps its completed turns.
	AppendMessage(ctx context.Context, conv *models.Conversation, msg models.Message) error

	// SaveConversation persists the full conversation record and
	// points the owning pair's last_conversation_id at it.
	SaveConversation(ctx context.Context, conv *models.Conversation) error
}
