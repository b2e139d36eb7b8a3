package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *zap.Logger
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient builds a client from cfg. An empty key falls back to the
// placeholder LM Studio accepts.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	cfg = cfg.withDefaults()
	base := cfg.BaseURL
	if base == "" {
		base = LMStudioBaseURL
	}
	key := cfg.APIKey
	if key == "" {
		key = LMStudioAPIKey
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(base, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: *cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

// BaseURL returns the endpoint root requests are sent to.
func (c *OpenAIClient) BaseURL() string { return c.baseURL }

// Chat sends one completion request. model overrides the configured model
// when non-empty.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	c.logger.Debug("chat request",
		zap.String("provider", ProviderOpenAI),
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		c.logger.Debug("chat response had no choices", zap.String("model", model))
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
