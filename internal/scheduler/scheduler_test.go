package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/prompt"
	"llm-duet/backend/internal/provider"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/internal/stream"
	"llm-duet/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory SessionStore tracking what was persisted.
type fakeStore struct {
	pair      *models.CharacterPair
	configs   map[int]models.ProviderConfig
	conv      *models.Conversation
	prompt    string
	appended  []models.Message
	saved     int
	appendErr error
	saveErr   error
}

func (f *fakeStore) LoadPair(_ context.Context, pairID string) (*models.CharacterPair, error) {
	if f.pair == nil || f.pair.ID != pairID {
		return nil, store.ErrNotFound
	}
	pair := *f.pair
	return &pair, nil
}

func (f *fakeStore) LoadProviderConfig(_ context.Context, slot int) (*models.ProviderConfig, error) {
	cfg, ok := f.configs[slot]
	if !ok {
		return nil, store.ErrNotConfigured
	}
	return &cfg, nil
}

func (f *fakeStore) LoadConversation(_ context.Context, convID, pairID string) (*models.Conversation, error) {
	if f.conv == nil || f.conv.ID != convID || f.conv.CharacterPairID != pairID {
		return nil, store.ErrNotFound
	}
	conv := *f.conv
	conv.Messages = append([]models.Message(nil), f.conv.Messages...)
	return &conv, nil
}

func (f *fakeStore) LoadSystemPrompt(context.Context) (string, error) {
	return f.prompt, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, _ *models.Conversation, msg models.Message) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeStore) SaveConversation(context.Context, *models.Conversation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	return nil
}

// scriptedClient returns canned responses or errors per call.
type scriptedClient struct {
	responses []string
	errs      map[int]error
	calls     int
	payloads  [][]prompt.ChatMessage
}

func (c *scriptedClient) Generate(_ context.Context, _ models.ProviderConfig, _ string, messages []prompt.ChatMessage) (string, error) {
	call := c.calls
	c.calls++
	c.payloads = append(c.payloads, messages)
	if err, ok := c.errs[call]; ok {
		return "", err
	}
	if call < len(c.responses) {
		return c.responses[call], nil
	}
	return fmt.Sprintf("reply %d", call), nil
}

func testLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

func newFakeStore() *fakeStore {
	pair := &models.CharacterPair{
		ID:   "pair-1",
		Name: "Alice_Bob",
		Character1: models.Character{
			Name:       "Alice",
			Definition: "You are {{char1}} talking to {{char2}}.",
			Model:      "model-a",
		},
		Character2: models.Character{
			Name:       "Bob",
			Definition: "You are {{char1}} talking to {{char2}}.",
			Model:      "model-b",
		},
	}
	return &fakeStore{
		pair: pair,
		configs: map[int]models.ProviderConfig{
			1: {Slot: 1, BaseURL: "http://one", APIKey: "k1"},
			2: {Slot: 2, BaseURL: "http://two", APIKey: "k2"},
		},
		conv: &models.Conversation{
			ID:              "conv-1",
			CharacterPairID: "pair-1",
			Messages:        []models.Message{},
		},
		prompt: "A dialogue between {{char1}} and {{char2}}.",
	}
}

func collect(t *testing.T, run func(emit stream.Emitter)) []stream.Event {
	t.Helper()
	emitter := stream.NewChannelEmitter(make(chan struct{}))
	done := make(chan struct{})
	go func() {
		run(emitter)
		emitter.Close()
		close(done)
	}()

	var events []stream.Event
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	return events
}

func newScheduler(st store.SessionStore, client ProviderClient) *Scheduler {
	return New(st, client, Config{DefaultTurns: 10, TurnDelay: 0}, testLogger(), nil)
}

func TestFreshConversationGeneratesFullTarget(t *testing.T) {
	st := newFakeStore()
	client := &scriptedClient{}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 4, emit)
	})

	assert.Equal(t, StateCompleted, state)
	require.Len(t, events, 5)

	speakers := []string{}
	for _, ev := range events[:4] {
		require.Equal(t, stream.EventMessage, ev.Type)
		speakers = append(speakers, ev.Message.Character)
	}
	assert.Equal(t, []string{"Alice", "Bob", "Alice", "Bob"}, speakers)

	final := events[4]
	assert.Equal(t, stream.EventComplete, final.Type)
	assert.Equal(t, 4, final.TotalTurns)

	assert.Len(t, st.appended, 4)
	assert.Equal(t, 1, st.saved)
}

func TestSeededConversationGeneratesOneFewer(t *testing.T) {
	st := newFakeStore()
	seed := models.NewMessage("Alice", "Hello, I am Alice.")
	seed.ConversationID = "conv-1"
	st.conv.Messages = []models.Message{seed}
	st.conv.TurnCount = 1

	client := &scriptedClient{}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 10, emit)
	})

	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, 9, client.calls)
	require.Len(t, events, 10)
	assert.Equal(t, 10, events[9].TotalTurns)

	// Bob answers the seed first.
	assert.Equal(t, "Bob", events[0].Message.Character)
}

func TestSpeakerParityProperty(t *testing.T) {
	for have := 0; have <= 5; have++ {
		st := newFakeStore()
		for i := 0; i < have; i++ {
			speaker, _ := st.pair.SpeakerAt(i)
			st.conv.Append(models.NewMessage(speaker.Name, fmt.Sprintf("msg %d", i)))
		}

		client := &scriptedClient{}
		s := newScheduler(st, client)

		events := collect(t, func(emit stream.Emitter) {
			s.Run(context.Background(), "conv-1", "pair-1", 1, emit)
		})

		if have == 1 {
			// Seeded special case: target 1, already have 1, nothing generated.
			require.Len(t, events, 1)
			assert.Equal(t, stream.EventComplete, events[0].Type)
			continue
		}

		require.GreaterOrEqual(t, len(events), 2)
		want := "Alice"
		if have%2 == 1 {
			want = "Bob"
		}
		assert.Equal(t, want, events[0].Message.Character, "pre-turn count %d", have)
	}
}

func TestProviderFailureMidBatchKeepsEarlierTurns(t *testing.T) {
	st := newFakeStore()
	client := &scriptedClient{
		errs: map[int]error{2: &provider.ProviderError{StatusCode: http.StatusInternalServerError, Message: "boom"}},
	}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 5, emit)
	})

	assert.Equal(t, StateAborted, state)
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventMessage, events[0].Type)
	assert.Equal(t, stream.EventMessage, events[1].Type)
	assert.Equal(t, stream.EventError, events[2].Type)
	assert.Contains(t, events[2].Error, "LLM API call failed")

	// Write-through: the two successful turns are persisted even
	// though the batch aborted.
	assert.Len(t, st.appended, 2)
	assert.Equal(t, 0, st.saved)
}

func TestEmptyResponseAborts(t *testing.T) {
	st := newFakeStore()
	client := &scriptedClient{errs: map[int]error{0: &provider.EmptyResponseError{}}}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 3, emit)
	})

	assert.Equal(t, StateAborted, state)
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	assert.Equal(t, "Received empty or null response from LLM API", events[0].Error)
	assert.Empty(t, st.appended)
}

func TestMissingPairAbortsBeforeAnyCall(t *testing.T) {
	st := newFakeStore()
	client := &scriptedClient{}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "no-such-pair", 5, emit)
	})

	assert.Equal(t, StateAborted, state)
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	assert.Equal(t, "Character pair not found", events[0].Error)
	assert.Zero(t, client.calls)
}

func TestMissingProviderConfigAborts(t *testing.T) {
	st := newFakeStore()
	delete(st.configs, 2)
	client := &scriptedClient{}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 5, emit)
	})

	assert.Equal(t, StateAborted, state)
	require.Len(t, events, 1)
	assert.Equal(t, "Please configure both provider endpoints", events[0].Error)
	assert.Zero(t, client.calls)
}

func TestMissingConversationAborts(t *testing.T) {
	st := newFakeStore()
	st.conv = nil
	client := &scriptedClient{}
	s := newScheduler(st, client)

	events := collect(t, func(emit stream.Emitter) {
		s.Run(context.Background(), "conv-1", "pair-1", 5, emit)
	})

	require.Len(t, events, 1)
	assert.Equal(t, "Conversation not found", events[0].Error)
	assert.Zero(t, client.calls)
}

func TestStorageFailureSurfacesError(t *testing.T) {
	st := newFakeStore()
	st.saveErr = fmt.Errorf("disk full")
	client := &scriptedClient{}
	s := newScheduler(st, client)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(context.Background(), "conv-1", "pair-1", 2, emit)
	})

	assert.Equal(t, StateAborted, state)
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventError, events[2].Type)
	assert.Contains(t, events[2].Error, "Failed to save conversation")
}

func TestCancellationStopsBetweenTurns(t *testing.T) {
	st := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())

	client := &scriptedClient{}
	s := New(st, cancelAfterFirst{client, cancel}, Config{DefaultTurns: 10, TurnDelay: 0}, testLogger(), nil)

	var state State
	events := collect(t, func(emit stream.Emitter) {
		state = s.Run(ctx, "conv-1", "pair-1", 5, emit)
	})

	assert.Equal(t, StateAborted, state)
	// One message got out before cancellation; no terminal event is
	// forced on a consumer that is already gone.
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventMessage, events[0].Type)
	assert.Equal(t, 1, client.calls)
}

// cancelAfterFirst cancels the run's context after the first
// successful generation.
type cancelAfterFirst struct {
	inner  *scriptedClient
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Generate(ctx context.Context, cfg models.ProviderConfig, model string, messages []prompt.ChatMessage) (string, error) {
	content, err := c.inner.Generate(ctx, cfg, model, messages)
	c.cancel()
	return content, err
}

func TestAssembledContextReachesProvider(t *testing.T) {
	st := newFakeStore()
	client := &scriptedClient{responses: []string{"First reply"}}
	s := newScheduler(st, client)

	collect(t, func(emit stream.Emitter) {
		s.Run(context.Background(), "conv-1", "pair-1", 2, emit)
	})

	require.Len(t, client.payloads, 2)

	first := client.payloads[0]
	require.Len(t, first, 1)
	assert.Equal(t, "system", first[0].Role)
	assert.Contains(t, first[0].Content, "A dialogue between Alice and Bob.")
	assert.Contains(t, first[0].Content, "[Start a new Chat]")

	// Second turn is Bob's: placeholders flip and the transcript
	// carries Alice's first line.
	second := client.payloads[1]
	assert.Contains(t, second[0].Content, "A dialogue between Bob and Alice.")
	assert.Contains(t, second[0].Content, "Alice: First reply")
}
