// Package llm wraps the chat-completion providers behind a single Client
// interface. The handler deals in ordered Turn sequences; providers map
// those onto their own wire formats.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"runxchat/internal/config"
)

// Turn roles. The sequence sent to a provider is ordered; a system turn,
// when present, sits at position 0.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one {role, content} entry in the conversation sent to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a chat-completion provider.
type Client interface {
	// ChatCompletion sends the full ordered turn sequence and returns the
	// model's single reply text.
	ChatCompletion(ctx context.Context, turns []Turn) (string, error)
	// Model reports the configured model identifier.
	Model() string
}

// New builds the provider named by the config. The zero provider defaults
// to openai so a bare OPENAI_API_KEY deployment works.
func New(cfg config.LLMConfig, log *zap.Logger) (Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, log), nil
	case "gemini":
		return NewGeminiClient(cfg, log)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
