package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/ticket-sla/internal/config"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("classifier api key not configured")

const systemPrompt = "You classify customer support messages. Answer exactly in the requested format."

// OpenAIClassifier sends prompts to an OpenAI-compatible chat completion endpoint.
// Calls are throttled by a token bucket shared by every caller.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIClassifier builds the client from configuration.
func NewOpenAIClassifier(cfg config.ClassifierConfig, logger *zap.Logger) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	logger.Info("text classifier configured", zap.String("model", cfg.Model))
	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("classifier rate limit: %w", err)
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("classifier call failed", zap.Error(err))
		return "", fmt.Errorf("classifier call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("classifier returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
