package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"llm-duet/backend/internal/scheduler"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/internal/stream"
	"llm-duet/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Runner drives a conversation run, emitting one event per turn.
type Runner interface {
	Run(ctx context.Context, convID, pairID string, turns int, emit stream.Emitter) scheduler.State
}

// StreamHandler mirrors the SSE stream over a websocket. Each frame is
// the same JSON object an SSE record would carry, so clients can share
// decoding logic between the two transports.
type StreamHandler struct {
	runner       Runner
	locker       *store.ConversationLocker
	defaultTurns int
	log          *logger.Logger
}

// NewStreamHandler creates a websocket stream handler.
func NewStreamHandler(runner Runner, locker *store.ConversationLocker, defaultTurns int, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		runner:       runner,
		locker:       locker,
		defaultTurns: defaultTurns,
		log:          log,
	}
}

// ServeStream upgrades the connection and streams one conversation run
// over it. The socket closes after the terminal event.
func (h *StreamHandler) ServeStream(c *gin.Context) {
	convID := c.Param("id")
	pairID := c.Query("pair_id")
	if pairID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair_id query parameter is required"})
		return
	}

	turns := h.defaultTurns
	if raw := c.Query("turns"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "turns must be a positive integer"})
			return
		}
		turns = parsed
	}

	release, acquired := h.locker.Acquire(c.Request.Context(), convID)
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{"error": "A stream is already running for this conversation"})
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "conversation_id", convID, "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client sends nothing meaningful; the read pump only detects
	// disconnects so the run stops at the next turn boundary.
	conn.SetReadLimit(maxMessageSize)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emitter := stream.NewChannelEmitter(ctx.Done())
	go func() {
		defer emitter.Close()
		h.runner.Run(ctx, convID, pairID, turns, emitter)
	}()

	for ev := range emitter.Events() {
		payload, err := stream.Payload(ev)
		if err != nil {
			h.log.Error("unencodable stream event", "conversation_id", convID, "error", err.Error())
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(payload); err != nil {
			h.log.Debug("websocket client disconnected mid-stream", "conversation_id", convID, "error", err.Error())
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
