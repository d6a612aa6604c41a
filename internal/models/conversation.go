package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleAssistant is the role marker carried by every generated message.
// Both characters speak as assistants; the speaker is identified by the
// Character field, not the role.
const RoleAssistant = "assistant"

// Message is one generated utterance. Append-only, immutable once created.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ConversationID string    `json:"-" gorm:"index;not null"`
	Position       int       `json:"-" gorm:"not null"`
	Role           string    `json:"role" gorm:"not null"`
	Character      string    `json:"character" gorm:"not null"`
	Content        string    `json:"content" gorm:"not null"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation is an ordered transcript owned by exactly one pair.
// It is mutated only by the turn runner.
type Conversation struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	CharacterPairID string    `json:"character_pair_id" gorm:"index;not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	TurnCount       int       `json:"turn_count"`
	Messages        []Message `json:"messages" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// NewConversation creates an empty conversation for a pair, seeding
// character1's starting message as turn 1 when the pair defines one.
func NewConversation(pair *CharacterPair) *Conversation {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:              uuid.NewString(),
		CharacterPairID: pair.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Messages:        []Message{},
	}
	if pair.Character1.StartingMessage != "" {
		conv.Append(NewMessage(pair.Character1.Name, pair.Character1.StartingMessage))
	}
	return conv
}

// NewMessage builds a message for the given speaker.
func NewMessage(character, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Character: character,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Append adds a message to the transcript and keeps TurnCount equal to
// the message count.
func (c *Conversation) Append(msg Message) {
	msg.ConversationID = c.ID
	msg.Position = len(c.Messages)
	c.Messages = append(c.Messages, msg)
	c.TurnCount = len(c.Messages)
	c.UpdatedAt = time.Now().UTC()
}

// ConversationSummary is the listing projection for a conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// Summary builds the listing projection.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		TurnCount: c.TurnCount,
	}
}
