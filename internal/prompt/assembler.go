// Package prompt assembles the provider payload for a single turn.
package prompt

import (
	"fmt"
	"strings"

	"llm-duet/backend/internal/models"
)

// Placeholder slots recognized in instruction and definition text.
// {{char1}} always resolves to the character currently speaking and
// {{char2}} to its counterpart, regardless of pair order.
const (
	PlaceholderSpeaker     = "{{char1}}"
	PlaceholderCounterpart = "{{char2}}"
)

// turnStartMarker separates the persona block from the transcript.
const turnStartMarker = "[Start a new Chat]"

// ChatMessage is one entry of the wire-level messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Assemble builds the payload for the speaker's next turn: substituted
// global instructions, substituted character definition, the turn-start
// marker, then one "Name: content" line per prior message in transcript
// order, all joined into a single system-role message.
//
// Pure function: same inputs produce byte-identical output.
func Assemble(speaker, other models.Character, instructions string, history []models.Message) []ChatMessage {
	parts := make([]string, 0, 3+len(history))
	parts = append(parts,
		Substitute(instructions, speaker.Name, other.Name),
		Substitute(speaker.Definition, speaker.Name, other.Name),
		turnStartMarker,
	)
	for _, msg := range history {
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Character, msg.Content))
	}

	return []ChatMessage{{Role: "system", Content: strings.Join(parts, "\n")}}
}

// Substitute resolves both name placeholders in the given text.
func Substitute(text, speakerName, otherName string) string {
	text = strings.ReplaceAll(text, PlaceholderSpeaker, speakerName)
	return strings.ReplaceAll(text, PlaceholderCounterpart, otherName)
}
