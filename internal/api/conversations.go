package api

import (
	stderrors "errors"
	"net/http"

	"llm-duet/backend/internal/store"
	"llm-duet/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves individual conversation transcripts.
type ConversationHandler struct {
	store Store
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(st Store) *ConversationHandler {
	return &ConversationHandler{store: st}
}

// RegisterRoutes mounts the conversation routes on the given group. The
// streaming route is registered separately by StreamHandler.
func (h *ConversationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	conversations := rg.Group("/conversations")
	{
		conversations.GET("/:id", h.GetConversation)
		conversations.DELETE("/:id", h.DeleteConversation)
	}
}

func pairIDQuery(c *gin.Context) (string, bool) {
	pairID := c.Query("pair_id")
	if pairID == "" {
		c.Error(errors.NewBadRequestError("MISSING_PAIR_ID", "pair_id query parameter is required"))
		return "", false
	}
	return pairID, true
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	pairID, ok := pairIDQuery(c)
	if !ok {
		return
	}

	conv, err := h.store.LoadConversation(c.Request.Context(), c.Param("id"), pairID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodeConversationNotFound, "Conversation not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	pairID, ok := pairIDQuery(c)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), c.Param("id"), pairID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodeConversationNotFound, "Conversation not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Conversation deleted"})
}
