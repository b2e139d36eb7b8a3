// Package llm talks to chat-completion models.
//
// Two providers are supported: any OpenAI-compatible endpoint (OpenAI itself
// or a local LM Studio server) and Google Gemini through the genai SDK. Both
// satisfy Client, so the rest of the agent never knows which one it has.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn. Messages are never persisted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Client produces one completion for a conversation. An empty string with a
// nil error means the model returned no usable completion.
type Client interface {
	Chat(ctx context.Context, messages []Message, model string) (string, error)
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 5 * time.Minute

	OpenAIBaseURL   = "https://api.openai.com/v1"
	LMStudioBaseURL = "http://localhost:1234/v1"
	LMStudioAPIKey  = "lm-studio"
	DefaultGemini   = "gemini-2.5-flash"
)

// Config selects and configures a provider.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64 // nil means DefaultTemperature
	MaxTokens   int
	Timeout     time.Duration
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// New builds the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	cfg = cfg.withDefaults()
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
