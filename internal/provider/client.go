// Package provider implements the outbound chat-completion client.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"llm-duet/backend/internal/models"
	"llm-duet/backend/internal/prompt"
	"llm-duet/backend/pkg/logger"
	"llm-duet/backend/pkg/resilience"
)

// Fixed sampling defaults. Not user-configurable today; Options keeps
// them overridable without touching call sites.
const (
	DefaultTemperature     = 0.85
	DefaultMaxTokens       = 4096
	DefaultGenerateTimeout = 120 * time.Second
	DefaultModelsTimeout   = 30 * time.Second
)

// ProviderError is an upstream HTTP, transport, or malformed-response
// failure on a specific turn. No retry is attempted at any level.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider request failed: %s", e.Message)
}

// EmptyResponseError marks a completion that came back blank,
// all-whitespace, or the literal string "null". Some providers return
// these without raising an HTTP error.
type EmptyResponseError struct {
	Content string
}

func (e *EmptyResponseError) Error() string {
	return "received empty or null response from provider"
}

// Options tunes the client. Zero values fall back to the fixed defaults.
type Options struct {
	GenerateTimeout time.Duration
	ModelsTimeout   time.Duration
	Temperature     float64
	MaxTokens       int
}

func (o Options) withDefaults() Options {
	if o.GenerateTimeout == 0 {
		o.GenerateTimeout = DefaultGenerateTimeout
	}
	if o.ModelsTimeout == 0 {
		o.ModelsTimeout = DefaultModelsTimeout
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// Client performs single chat-completion requests against configured
// endpoints. One instance serves all slots; per-endpoint circuit
// breakers keep a persistently failing endpoint from being hammered.
type Client struct {
	httpClient *http.Client
	opts       Options
	log        *logger.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewClient creates a provider client.
func NewClient(opts Options, log *logger.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		// Per-request deadlines come from the context; the transport
		// timeout is the outer bound.
		httpClient: &http.Client{Timeout: opts.GenerateTimeout + 5*time.Second},
		opts:       opts,
		log:        log,
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
}

type completionRequest struct {
	Model       string               `json:"model"`
	Messages    []prompt.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate performs one chat-completion request and returns the
// generated text. Failures are typed: *ProviderError for HTTP,
// transport, timeout, and empty-choices failures; *EmptyResponseError
// for blank or "null" completions.
func (c *Client) Generate(ctx context.Context, cfg models.ProviderConfig, model string, messages []prompt.ChatMessage) (string, error) {
	var content string
	err := c.breaker(cfg.BaseURL).Execute(func() error {
		var genErr error
		content, genErr = c.generate(ctx, cfg, model, messages)
		return genErr
	})
	if err != nil {
		if _, ok := err.(*ProviderError); ok {
			return "", err
		}
		if _, ok := err.(*EmptyResponseError); ok {
			return "", err
		}
		// Breaker short-circuit or other non-typed failure.
		return "", &ProviderError{Message: err.Error()}
	}
	return content, nil
}

func (c *Client) generate(ctx context.Context, cfg models.ProviderConfig, model string, messages []prompt.ChatMessage) (string, error) {
	reqBody := completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Message: fmt.Sprintf("error marshaling request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.GenerateTimeout)
	defer cancel()

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &ProviderError{Message: fmt.Sprintf("error creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Message: fmt.Sprintf("error making API request: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("error reading response body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("error unmarshaling response: %v", err)}
	}

	if completion.Error != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: completion.Error.Message}
	}

	if len(completion.Choices) == 0 {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "no choices in provider response"}
	}

	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" || strings.EqualFold(strings.TrimSpace(content), "null") {
		return "", &EmptyResponseError{Content: content}
	}

	c.log.Debug("completion generated",
		"model", model,
		"latency_ms", time.Since(start).Milliseconds(),
		"chars", len(content),
	)

	return content, nil
}

// ListModels fetches the models available at the configured endpoint.
// Used only by the configuration surface; bounded by the shorter
// models timeout.
func (c *Client) ListModels(ctx context.Context, cfg models.ProviderConfig) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ModelsTimeout)
	defer cancel()

	url := strings.TrimRight(cfg.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("error creating request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("failed to fetch models: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("error reading response body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return json.RawMessage(body), nil
}

func (c *Client) breaker(baseURL string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[baseURL]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(baseURL), c.log)
		c.breakers[baseURL] = cb
	}
	return cb
}
