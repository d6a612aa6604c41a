// Package scheduler drives the turn loop of one streaming conversation
// run: pick the speaker, assemble context, call the provider, persist,
// emit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/prompt"
	"llm-duet/backend/internal/provider"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/internal/stream"
	"llm-duet/backend/pkg/logger"
)

// State of a run. INITIALIZING and RUNNING are transient; COMPLETED and
// ABORTED are terminal.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateAborted      State = "aborted"
)

// participants is the number of speakers and therefore provider slots.
// The config map is keyed by slot so growing this means adding rows,
// not branches.
const participants = 2

// ProviderClient is the outbound generation dependency.
type ProviderClient interface {
	Generate(ctx context.Context, cfg models.ProviderConfig, model string, messages []prompt.ChatMessage) (string, error)
}

// Config tunes a scheduler.
type Config struct {
	// DefaultTurns is used when the caller does not request a count.
	DefaultTurns int
	// TurnDelay paces consecutive provider calls and lets the
	// transport flush each event before the next turn starts. Its
	// correct value is provider-dependent, hence configurable.
	TurnDelay time.Duration
}

// DefaultConfig mirrors the historical behavior: ten turns, 100ms pace.
func DefaultConfig() Config {
	return Config{
		DefaultTurns: 10,
		TurnDelay:    100 * time.Millisecond,
	}
}

// Scheduler creates runs. One Run call serves one streaming connection;
// concurrent runs against distinct conversations are independent.
type Scheduler struct {
	store   store.SessionStore
	client  ProviderClient
	cfg     Config
	log     *logger.Logger
	metrics *Metrics
}

// New creates a scheduler.
func New(st store.SessionStore, client ProviderClient, cfg Config, log *logger.Logger, metrics *Metrics) *Scheduler {
	if cfg.DefaultTurns <= 0 {
		cfg.DefaultTurns = DefaultConfig().DefaultTurns
	}
	return &Scheduler{store: st, client: client, cfg: cfg, log: log, metrics: metrics}
}

// Run generates up to `turns` turns for the conversation, emitting each
// one in production order, and returns the terminal state. Every
// successful turn is persisted before the next begins, so an aborted
// run keeps the turns generated up to the failure. The stream always
// ends in exactly one terminal event unless the consumer disconnected.
func (s *Scheduler) Run(ctx context.Context, convID, pairID string, turns int, emit stream.Emitter) State {
	r := &run{
		Scheduler: s,
		state:     StateInitializing,
		emit:      emit,
		log:       s.log.WithConversationID(convID).WithPairID(pairID),
	}
	return r.execute(ctx, convID, pairID, turns)
}

// run is the per-invocation state machine.
type run struct {
	*Scheduler
	state State
	emit  stream.Emitter
	log   *logger.Logger
}

func (r *run) abort(description string) State {
	r.state = StateAborted
	r.emit.Send(stream.ErrorEvent(description))
	r.metrics.RunAborted(context.Background())
	return r.state
}

func (r *run) execute(ctx context.Context, convID, pairID string, turns int) State {
	if turns <= 0 {
		turns = r.cfg.DefaultTurns
	}

	pair, err := r.store.LoadPair(ctx, pairID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.abort("Character pair not found")
		}
		return r.abort(fmt.Sprintf("Failed to load character pair: %v", err))
	}

	configs := make(map[int]models.ProviderConfig, participants)
	for slot := 1; slot <= participants; slot++ {
		cfg, err := r.store.LoadProviderConfig(ctx, slot)
		if err != nil {
			if errors.Is(err, store.ErrNotConfigured) {
				return r.abort("Please configure both provider endpoints")
			}
			return r.abort(fmt.Sprintf("Failed to load provider config for slot %d: %v", slot, err))
		}
		configs[slot] = *cfg
	}

	conv, err := r.store.LoadConversation(ctx, convID, pairID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.abort("Conversation not found")
		}
		return r.abort(fmt.Sprintf("Failed to load conversation: %v", err))
	}

	instructions, err := r.store.LoadSystemPrompt(ctx)
	if err != nil {
		return r.abort(fmt.Sprintf("Failed to load system prompt: %v", err))
	}

	// A conversation holding exactly one message is the freshly seeded
	// starting-message state; `turns` then reads as the desired final
	// count, so one fewer is generated. Any other pre-existing length
	// generates the full requested count. Kept exactly as observed.
	toGenerate := turns
	if len(conv.Messages) == 1 {
		toGenerate = turns - 1
	}

	r.state = StateRunning
	r.log.Info("run started",
		"turns_requested", turns,
		"turns_to_generate", toGenerate,
		"existing_messages", len(conv.Messages),
	)

	for i := 0; i < toGenerate; i++ {
		// Cooperative cancellation between turns; the in-flight
		// provider request also carries ctx.
		if ctx.Err() != nil {
			r.state = StateAborted
			r.log.Info("run cancelled", "turns_generated", i)
			return r.state
		}

		position := len(conv.Messages)
		speaker, other := pair.SpeakerAt(position)
		cfg := configs[models.SlotAt(position)]

		payload := prompt.Assemble(speaker, other, instructions, conv.Messages)

		start := time.Now()
		content, err := r.client.Generate(ctx, cfg, speaker.Model, payload)
		if err != nil {
			return r.abort(describeGenerateError(err))
		}
		r.metrics.TurnGenerated(ctx, time.Since(start))

		conv.Append(models.NewMessage(speaker.Name, content))
		appended := conv.Messages[len(conv.Messages)-1]

		// Write-through: each turn lands on disk before the next one
		// starts, so a later failure cannot lose it.
		if err := r.store.AppendMessage(ctx, conv, appended); err != nil {
			return r.abort(fmt.Sprintf("Failed to save message: %v", err))
		}

		if !r.emit.Send(stream.MessageEvent(appended)) {
			r.state = StateAborted
			r.log.Info("consumer disconnected", "turns_generated", i+1)
			return r.state
		}

		if i < toGenerate-1 && r.cfg.TurnDelay > 0 {
			select {
			case <-time.After(r.cfg.TurnDelay):
			case <-ctx.Done():
				r.state = StateAborted
				r.log.Info("run cancelled during pacing delay", "turns_generated", i+1)
				return r.state
			}
		}
	}

	if err := r.store.SaveConversation(ctx, conv); err != nil {
		return r.abort(fmt.Sprintf("Failed to save conversation: %v", err))
	}

	r.state = StateCompleted
	r.emit.Send(stream.CompleteEvent(conv.TurnCount))
	r.log.Info("run completed", "turn_count", conv.TurnCount)
	return r.state
}

func describeGenerateError(err error) string {
	var emptyErr *provider.EmptyResponseError
	if errors.As(err, &emptyErr) {
		return "Received empty or null response from LLM API"
	}
	return fmt.Sprintf("LLM API call failed: %v", err)
}
