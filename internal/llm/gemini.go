package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"runxchat/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements Client on the Google GenAI SDK. A system turn in
// the sequence becomes the request's system instruction; the rest map onto
// user/model content in order.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(cfg config.LLMConfig, log *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" || model == defaultOpenAIModel {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
		log:     log.Named("gemini"),
	}, nil
}

// ChatCompletion sends the turn sequence and returns the reply text.
func (c *GeminiClient) ChatCompletion(ctx context.Context, turns []Turn) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var cfg *genai.GenerateContentConfig
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleSystem:
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(turn.Content, genai.RoleUser),
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no turns to send")
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI request failed: %w", err)
	}

	reply := strings.TrimSpace(result.Text())
	if reply == "" {
		return "", fmt.Errorf("no completion returned")
	}

	c.log.Debug("chat completion finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("reply_len", len(reply)))
	return reply, nil
}

// Model returns the configured model identifier.
func (c *GeminiClient) Model() string {
	return c.model
}
