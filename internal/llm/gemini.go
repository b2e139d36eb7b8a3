package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient calls Google Gemini through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	logger      *zap.Logger
}

// NewGeminiClient builds a Gemini client. The API key is required.
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGemini
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(*cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		logger:      cfg.Logger,
	}, nil
}

// Chat sends the conversation to Gemini. System messages are folded into the
// system instruction; assistant turns map to the model role.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	c.logger.Debug("chat request",
		zap.String("provider", ProviderGemini),
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	system, contents := toGeminiContents(messages)
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		c.logger.Debug("gemini response had no candidates", zap.String("model", model))
		return "", nil
	}
	return resp.Text(), nil
}

// toGeminiContents splits messages into a joined system instruction and the
// user/model turns.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
