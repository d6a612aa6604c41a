package api

import (
	"context"
	"net/http"
	"strconv"

	"llm-duet/backend/internal/scheduler"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/internal/stream"
	"llm-duet/backend/pkg/errors"
	"llm-duet/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Runner drives a conversation to its target length, emitting one event
// per generated turn. Satisfied by *scheduler.Scheduler.
type Runner interface {
	Run(ctx context.Context, convID, pairID string, turns int, emit stream.Emitter) scheduler.State
}

// StreamHandler serves the turn-by-turn SSE stream of a conversation
// run.
type StreamHandler struct {
	runner       Runner
	locker       *store.ConversationLocker
	defaultTurns int
	log          *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(runner Runner, locker *store.ConversationLocker, defaultTurns int, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		runner:       runner,
		locker:       locker,
		defaultTurns: defaultTurns,
		log:          log,
	}
}

// RegisterRoutes mounts the streaming route on the given group.
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/conversations/:id/stream", h.Stream)
}

// Stream generates turns until the conversation reaches its target
// length, writing each as an SSE record. Client disconnect cancels the
// run at the next turn boundary; turns already persisted survive.
func (h *StreamHandler) Stream(c *gin.Context) {
	convID := c.Param("id")
	pairID, ok := pairIDQuery(c)
	if !ok {
		return
	}

	turns := h.defaultTurns
	if raw := c.Query("turns"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.Error(errors.NewBadRequestError("INVALID_TURNS", "turns must be a positive integer"))
			return
		}
		turns = parsed
	}

	release, acquired := h.locker.Acquire(c.Request.Context(), convID)
	if !acquired {
		c.Error(errors.NewConflictError("STREAM_IN_PROGRESS", "A stream is already running for this conversation"))
		return
	}
	defer release()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	emitter := stream.NewChannelEmitter(ctx.Done())

	go func() {
		defer emitter.Close()
		h.runner.Run(ctx, convID, pairID, turns, emitter)
	}()

	for ev := range emitter.Events() {
		if err := stream.WriteSSE(c.Writer, ev); err != nil {
			h.log.Debug("client disconnected mid-stream", "conversation_id", convID, "error", err.Error())
			return
		}
	}
}
