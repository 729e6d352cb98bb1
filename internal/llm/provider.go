package llm

import (
	"context"
	"fmt"
	"strings"

	"ai-meal-plan-api/internal/config"
)

// NewFromConfig builds the generator for the configured provider, wrapped
// with the per-call deadline. It returns a nil generator and no error when
// the provider has no credential; callers treat that as "model disabled".
func NewFromConfig(ctx context.Context, cfg *config.Config) (StructuredGenerator, func() error, error) {
	noop := func() error { return nil }
	if !cfg.ModelConfigured() {
		return nil, noop, nil
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		return WithTimeout(client, cfg.LLMTimeout), client.Close, nil
	case config.ProviderGroq:
		return WithTimeout(NewGroqClient(cfg.GroqAPIKey, cfg.GroqModel), cfg.LLMTimeout), noop, nil
	case config.ProviderOpenAI:
		client := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if cfg.OpenAIBaseURL != "" {
			client = NewChatClient(strings.TrimRight(cfg.OpenAIBaseURL, "/")+"/chat/completions", cfg.OpenAIAPIKey, cfg.OpenAIModel)
		}
		return WithTimeout(client, cfg.LLMTimeout), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported provider %q", cfg.LLMProvider)
	}
}
