package prompt

import (
	"strings"
	"testing"

	"llm-duet/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCharacters() (models.Character, models.Character) {
	alice := models.Character{
		Name:       "Alice",
		Definition: "You are {{char1}}, a detective. You are talking to {{char2}}.",
		Model:      "gpt-4o",
	}
	bob := models.Character{
		Name:       "Bob",
		Definition: "You are {{char1}}. Your rival is {{char2}}.",
		Model:      "llama-3",
	}
	return alice, bob
}

func TestAssembleSubstitutesBothPlaceholders(t *testing.T) {
	alice, bob := testCharacters()
	instructions := "A dialogue between {{char1}} and {{char2}}."

	payload := Assemble(alice, bob, instructions, nil)
	require.Len(t, payload, 1)
	assert.Equal(t, "system", payload[0].Role)

	content := payload[0].Content
	assert.NotContains(t, content, PlaceholderSpeaker)
	assert.NotContains(t, content, PlaceholderCounterpart)
	// One {{char1}} in the instructions plus one in Alice's definition,
	// and the mirror for {{char2}}.
	assert.Equal(t, 2, strings.Count(content, "Alice"))
	assert.Equal(t, 2, strings.Count(content, "Bob"))
}

func TestAssembleMappingFollowsTurnNotPairOrder(t *testing.T) {
	alice, bob := testCharacters()
	instructions := "{{char1}} speaks to {{char2}}."

	// Bob's turn: {{char1}} must resolve to Bob even though he is
	// character2 of the pair.
	payload := Assemble(bob, alice, instructions, nil)
	assert.Contains(t, payload[0].Content, "Bob speaks to Alice.")
	assert.Contains(t, payload[0].Content, "You are Bob. Your rival is Alice.")
}

func TestAssembleOrderingAndTranscript(t *testing.T) {
	alice, bob := testCharacters()
	history := []models.Message{
		{Character: "Alice", Content: "Where were you last night?"},
		{Character: "Bob", Content: "At the opera."},
	}

	payload := Assemble(alice, bob, "Global rules.", history)
	lines := strings.Split(payload[0].Content, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Global rules.", lines[0])
	assert.Equal(t, "You are Alice, a detective. You are talking to Bob.", lines[1])
	assert.Equal(t, "[Start a new Chat]", lines[2])
	assert.Equal(t, "Alice: Where were you last night?", lines[3])
	assert.Equal(t, "Bob: At the opera.", lines[4])
}

func TestAssembleIsDeterministic(t *testing.T) {
	alice, bob := testCharacters()
	history := []models.Message{{Character: "Alice", Content: "Hello"}}

	first := Assemble(alice, bob, "Rules {{char1}} {{char2}}", history)
	second := Assemble(alice, bob, "Rules {{char1}} {{char2}}", history)
	assert.Equal(t, first, second)
}

func TestSubstituteEmptyText(t *testing.T) {
	assert.Equal(t, "", Substitute("", "Alice", "Bob"))
}
