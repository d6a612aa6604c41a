package models

import (
	"strings"
	"time"
)

// ProviderConfig binds a provider endpoint and credential to a numeric
// slot. Slot 1 serves the character that speaks on even transcript
// positions, slot 2 the one on odd positions. Configs are keyed by slot
// so additional participants only need additional rows.
type ProviderConfig struct {
	Slot      int       `json:"slot" gorm:"primaryKey"`
	BaseURL   string    `json:"base_url" gorm:"not null"`
	APIKey    string    `json:"api_key" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Masked returns a copy safe to echo back to clients: everything but the
// last four characters of the credential is redacted.
func (c ProviderConfig) Masked() ProviderConfig {
	masked := c
	if n := len(c.APIKey); n > 4 {
		masked.APIKey = strings.Repeat("*", n-4) + c.APIKey[n-4:]
	} else if n > 0 {
		masked.APIKey = strings.Repeat("*", n)
	}
	return masked
}

// SystemPrompt is the single global instruction template shared by both
// characters. One row, fixed primary key.
type SystemPrompt struct {
	ID        int       `json:"-" gorm:"primaryKey"`
	Prompt    string    `json:"prompt"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemPromptID is the fixed primary key of the single prompt row.
const SystemPromptID = 1
