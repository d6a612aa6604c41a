package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PairHandler manages character pairs and their conversations.
type PairHandler struct {
	store Store
}

// NewPairHandler creates a pair handler.
func NewPairHandler(st Store) *PairHandler {
	return &PairHandler{store: st}
}

// RegisterRoutes mounts the pair routes on the given group.
func (h *PairHandler) RegisterRoutes(rg *gin.RouterGroup) {
	pairs := rg.Group("/character-pairs")
	{
		pairs.POST("", h.CreatePair)
		pairs.GET("", h.ListPairs)
		pairs.GET("/:id", h.GetPair)
		pairs.PUT("/:id", h.UpdatePair)
		pairs.DELETE("/:id", h.DeletePair)
		pairs.POST("/:id/conversations", h.CreateConversation)
		pairs.GET("/:id/conversations", h.ListConversations)
	}
}

func (h *PairHandler) CreatePair(c *gin.Context) {
	var req models.CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_PAIR", err.Error()))
		return
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s", req.Character1.Name, req.Character2.Name)
	}

	pair := &models.CharacterPair{
		ID:         uuid.NewString(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Character1: req.Character1,
		Character2: req.Character2,
	}

	if err := h.store.CreatePair(c.Request.Context(), pair); err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"pair_id": pair.ID,
		"message": "Character pair created",
	})
}

func (h *PairHandler) ListPairs(c *gin.Context) {
	pairs, err := h.store.ListPairs(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairs": pairs})
}

func (h *PairHandler) GetPair(c *gin.Context) {
	pair, err := h.store.LoadPair(c.Request.Context(), c.Param("id"))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodePairNotFound, "Character pair not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *PairHandler) UpdatePair(c *gin.Context) {
	var req models.CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_PAIR", err.Error()))
		return
	}

	pair := &models.CharacterPair{
		ID:         c.Param("id"),
		Name:       req.Name,
		Character1: req.Character1,
		Character2: req.Character2,
	}
	if pair.Name == "" {
		pair.Name = fmt.Sprintf("%s_%s", req.Character1.Name, req.Character2.Name)
	}

	if err := h.store.UpdatePair(c.Request.Context(), pair); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodePairNotFound, "Character pair not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Character pair updated"})
}

func (h *PairHandler) DeletePair(c *gin.Context) {
	if err := h.store.DeletePair(c.Request.Context(), c.Param("id")); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodePairNotFound, "Character pair not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Character pair deleted"})
}

// CreateConversation creates an empty conversation for a pair, seeded
// with character1's starting message when one is defined.
func (h *PairHandler) CreateConversation(c *gin.Context) {
	ctx := c.Request.Context()

	pair, err := h.store.LoadPair(ctx, c.Param("id"))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodePairNotFound, "Character pair not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}

	conv := models.NewConversation(pair)
	if err := h.store.SaveConversation(ctx, conv); err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "conversation_id": conv.ID})
}

func (h *PairHandler) ListConversations(c *gin.Context) {
	conversations, err := h.store.ListConversations(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}
