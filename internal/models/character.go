package models

import (
	"time"
)

// Character is one of the two personas in a pair. It is stored as part of
// its owning CharacterPair, never as a standalone record.
type Character struct {
	Name            string `json:"name" binding:"required"`
	Definition      string `json:"definition" binding:"required"`
	Model           string `json:"model" binding:"required"`
	StartingMessage string `json:"starting_message,omitempty"`
}

// CharacterPair is the fixed two-character template conversations are
// generated from. Pairing order is set at creation and determines who
// speaks first.
type CharacterPair struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name               string    `json:"name" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at"`
	LastConversationID *string   `json:"last_conversation_id,omitempty"`
	Character1         Character `json:"character1" gorm:"serializer:json;not null"`
	Character2         Character `json:"character2" gorm:"serializer:json;not null"`
}

// SpeakerAt returns the character that speaks the message at the given
// transcript position: character1 on even positions, character2 on odd.
// Turn order is a pure function of transcript length, never stored.
func (p *CharacterPair) SpeakerAt(position int) (speaker, other Character) {
	if position%2 == 0 {
		return p.Character1, p.Character2
	}
	return p.Character2, p.Character1
}

// SlotAt returns the provider-config slot for the message at the given
// transcript position. Slot 1 always belongs to whichever character
// structurally speaks on even positions.
func SlotAt(position int) int {
	if position%2 == 0 {
		return 1
	}
	return 2
}

// CreatePairRequest is the payload for creating or updating a pair.
type CreatePairRequest struct {
	Name       string    `json:"name"`
	Character1 Character `json:"character1" binding:"required"`
	Character2 Character `json:"character2" binding:"required"`
}

// PairSummary is the listing projection for a pair.
type PairSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	Character1Name string    `json:"character1_name"`
	Character2Name string    `json:"character2_name"`
}

// Summary builds the listing projection.
func (p *CharacterPair) Summary() PairSummary {
	return PairSummary{
		ID:             p.ID,
		Name:           p.Name,
		CreatedAt:      p.CreatedAt,
		Character1Name: p.Character1.Name,
		Character2Name: p.Character2.Name,
	}
}
