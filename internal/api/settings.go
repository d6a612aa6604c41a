package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/provider"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SettingsHandler manages the shared system prompt and per-slot provider
// endpoints. Model listing loads configs through sessions so credentials
// held in the secrets backend are resolved before the upstream call.
type SettingsHandler struct {
	store    Store
	sessions store.SessionStore
	client   *provider.Client
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(st Store, sessions store.SessionStore, client *provider.Client) *SettingsHandler {
	return &SettingsHandler{store: st, sessions: sessions, client: client}
}

// RegisterRoutes mounts the settings routes on the given group.
func (h *SettingsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/system-prompt", h.GetSystemPrompt)
	rg.PUT("/system-prompt", h.SetSystemPrompt)
	rg.GET("/provider-configs/:slot", h.GetProviderConfig)
	rg.PUT("/provider-configs/:slot", h.SetProviderConfig)
	rg.GET("/provider-configs/:slot/models", h.ListModels)
}

func (h *SettingsHandler) GetSystemPrompt(c *gin.Context) {
	prompt, err := h.store.LoadSystemPrompt(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

type systemPromptRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

func (h *SettingsHandler) SetSystemPrompt(c *gin.Context) {
	var req systemPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_PROMPT", err.Error()))
		return
	}
	if err := h.store.SaveSystemPrompt(c.Request.Context(), req.Prompt); err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "System prompt updated"})
}

func slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil || slot < 1 {
		c.Error(errors.NewBadRequestError("INVALID_SLOT", "slot must be a positive integer"))
		return 0, false
	}
	return slot, true
}

func (h *SettingsHandler) GetProviderConfig(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	cfg, err := h.store.LoadProviderConfig(c.Request.Context(), slot)
	if err != nil {
		if stderrors.Is(err, store.ErrNotConfigured) {
			c.Error(errors.NewNotFoundError(errors.CodeProviderNotConfigured, "Provider endpoint not configured"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, cfg.Masked())
}

type providerConfigRequest struct {
	BaseURL string `json:"base_url" binding:"required"`
	APIKey  string `json:"api_key"`
}

func (h *SettingsHandler) SetProviderConfig(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	var req providerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_PROVIDER_CONFIG", err.Error()))
		return
	}

	cfg := &models.ProviderConfig{Slot: slot, BaseURL: req.BaseURL, APIKey: req.APIKey}
	if err := h.store.SaveProviderConfig(c.Request.Context(), cfg); err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Provider endpoint updated"})
}

// ListModels proxies the configured endpoint's model catalog so clients
// can populate model pickers without holding the credential themselves.
func (h *SettingsHandler) ListModels(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.sessions.LoadProviderConfig(ctx, slot)
	if err != nil {
		if stderrors.Is(err, store.ErrNotConfigured) {
			c.Error(errors.NewNotFoundError(errors.CodeProviderNotConfigured, "Provider endpoint not configured"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeStorageError, err.Error()))
		return
	}

	catalog, err := h.client.ListModels(ctx, *cfg)
	if err != nil {
		c.Error(errors.NewBadGatewayError(errors.CodeProviderError, err.Error()))
		return
	}

	c.Data(http.StatusOK, "application/json", catalog)
}
