package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/provider"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	pairs         map[string]*models.CharacterPair
	conversations map[string]*models.Conversation
	configs       map[int]*models.ProviderConfig
	prompt        string
}

func newMemStore() *memStore {
	return &memStore{
		pairs:         make(map[string]*models.CharacterPair),
		conversations: make(map[string]*models.Conversation),
		configs:       make(map[int]*models.ProviderConfig),
	}
}

func (s *memStore) LoadPair(_ context.Context, pairID string) (*models.CharacterPair, error) {
	pair, ok := s.pairs[pairID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return pair, nil
}

func (s *memStore) LoadProviderConfig(_ context.Context, slot int) (*models.ProviderConfig, error) {
	cfg, ok := s.configs[slot]
	if !ok {
		return nil, store.ErrNotConfigured
	}
	return cfg, nil
}

func (s *memStore) LoadConversation(_ context.Context, convID, pairID string) (*models.Conversation, error) {
	conv, ok := s.conversations[convID]
	if !ok || conv.CharacterPairID != pairID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (s *memStore) LoadSystemPrompt(context.Context) (string, error) { return s.prompt, nil }

func (s *memStore) AppendMessage(_ context.Context, conv *models.Conversation, _ models.Message) error {
	s.conversations[conv.ID] = conv
	return nil
}

func (s *memStore) SaveConversation(_ context.Context, conv *models.Conversation) error {
	s.conversations[conv.ID] = conv
	return nil
}

func (s *memStore) CreatePair(_ context.Context, pair *models.CharacterPair) error {
	s.pairs[pair.ID] = pair
	return nil
}

func (s *memStore) ListPairs(context.Context) ([]models.PairSummary, error) {
	summaries := make([]models.PairSummary, 0, len(s.pairs))
	for _, pair := range s.pairs {
		summaries = append(summaries, pair.Summary())
	}
	return summaries, nil
}

func (s *memStore) UpdatePair(_ context.Context, pair *models.CharacterPair) error {
	if _, ok := s.pairs[pair.ID]; !ok {
		return store.ErrNotFound
	}
	s.pairs[pair.ID] = pair
	return nil
}

func (s *memStore) DeletePair(_ context.Context, pairID string) error {
	if _, ok := s.pairs[pairID]; !ok {
		return store.ErrNotFound
	}
	delete(s.pairs, pairID)
	return nil
}

func (s *memStore) ListConversations(_ context.Context, pairID string) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	for _, conv := range s.conversations {
		if conv.CharacterPairID == pairID {
			summaries = append(summaries, conv.Summary())
		}
	}
	return summaries, nil
}

func (s *memStore) DeleteConversation(_ context.Context, convID, pairID string) error {
	conv, ok := s.conversations[convID]
	if !ok || conv.CharacterPairID != pairID {
		return store.ErrNotFound
	}
	delete(s.conversations, convID)
	return nil
}

func (s *memStore) SaveSystemPrompt(_ context.Context, text string) error {
	s.prompt = text
	return nil
}

func (s *memStore) SaveProviderConfig(_ context.Context, cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	s.configs[cfg.Slot] = cfg
	return nil
}

func apiRouter(st Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(errors.ErrorHandler())

	v1 := engine.Group("/api/v1")
	NewPairHandler(st).RegisterRoutes(v1)
	NewConversationHandler(st).RegisterRoutes(v1)
	NewSettingsHandler(st, st, nil).RegisterRoutes(v1)
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func putJSON(t *testing.T, engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func samplePairRequest() models.CreatePairRequest {
	return models.CreatePairRequest{
		Character1: models.Character{
			Name:            "Alice",
			Definition:      "A thoughtful physicist.",
			Model:           "model-a",
			StartingMessage: "Shall we begin?",
		},
		Character2: models.Character{
			Name:       "Bob",
			Definition: "A skeptical engineer.",
			Model:      "model-b",
		},
	}
}

func TestCreateAndGetPair(t *testing.T) {
	st := newMemStore()
	engine := apiRouter(st)

	w := postJSON(t, engine, "/api/v1/character-pairs", samplePairRequest())
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		PairID string `json:"pair_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.PairID)

	// Name defaults to the joined character names.
	assert.Equal(t, "Alice_Bob", st.pairs[created.PairID].Name)

	w = get(engine, "/api/v1/character-pairs/"+created.PairID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Alice"`)
}

func TestGetMissingPairReturns404(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := get(engine, "/api/v1/character-pairs/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Character pair not found")
}

func TestCreatePairRejectsIncompleteCharacters(t *testing.T) {
	engine := apiRouter(newMemStore())

	req := samplePairRequest()
	req.Character2.Model = ""
	w := postJSON(t, engine, "/api/v1/character-pairs", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateConversationSeedsStartingMessage(t *testing.T) {
	st := newMemStore()
	engine := apiRouter(st)

	w := postJSON(t, engine, "/api/v1/character-pairs", samplePairRequest())
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		PairID string `json:"pair_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = postJSON(t, engine, "/api/v1/character-pairs/"+created.PairID+"/conversations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv struct {
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	stored := st.conversations[conv.ConversationID]
	require.NotNil(t, stored)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, "Alice", stored.Messages[0].Character)
	assert.Equal(t, "Shall we begin?", stored.Messages[0].Content)
	assert.Equal(t, 1, stored.TurnCount)
}

func TestGetConversationRequiresPairID(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := get(engine, "/api/v1/conversations/c1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_PAIR_ID")
}

func TestSystemPromptRoundTrip(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := putJSON(t, engine, "/api/v1/system-prompt", gin.H{"prompt": "Stay in character as {{char1}}."})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(engine, "/api/v1/system-prompt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Stay in character as {{char1}}.")
}

func TestProviderConfigMasksCredential(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := putJSON(t, engine, "/api/v1/provider-configs/1", gin.H{
		"base_url": "https://api.example.com/v1",
		"api_key":  "sk-secret-1234",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(engine, "/api/v1/provider-configs/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret-1234")
	assert.Contains(t, w.Body.String(), "1234")
}

func TestProviderConfigUnknownSlotReturns404(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := get(engine, "/api/v1/provider-configs/2")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeProviderNotConfigured)
}

func TestProviderConfigRejectsBadSlot(t *testing.T) {
	engine := apiRouter(newMemStore())

	w := get(engine, "/api/v1/provider-configs/zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListModelsProxiesUpstreamCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		require.Equal(t, "Bearer sk-live", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data": [{"id": "gpt-4o"}, {"id": "llama-3"}]}`)
	}))
	defer srv.Close()

	st := newMemStore()
	st.configs[1] = &models.ProviderConfig{Slot: 1, BaseURL: srv.URL, APIKey: "sk-live"}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(errors.ErrorHandler())
	client := provider.NewClient(provider.Options{}, testLogger())
	NewSettingsHandler(st, st, client).RegisterRoutes(engine.Group("/api/v1"))

	w := get(engine, "/api/v1/provider-configs/1/models")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data": [{"id": "gpt-4o"}, {"id": "llama-3"}]}`, w.Body.String())
}

func TestListModelsUpstreamFailureReturns502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := newMemStore()
	st.configs[1] = &models.ProviderConfig{Slot: 1, BaseURL: srv.URL, APIKey: "bad"}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(errors.ErrorHandler())
	client := provider.NewClient(provider.Options{}, testLogger())
	NewSettingsHandler(st, st, client).RegisterRoutes(engine.Group("/api/v1"))

	w := get(engine, "/api/v1/provider-configs/1/models")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeProviderError)
}
