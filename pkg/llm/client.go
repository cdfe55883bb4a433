// Package llm provides the text-completion clients behind SQL generation.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Client is a one-shot completion client. Implementations are safe for
// concurrent use.
type Client interface {
	// Complete sends a system prompt plus one user message and returns the
	// model's text response.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Model returns the configured model name, for logging and responses.
	Model() string
}

// Config holds configuration for creating a completion client.
type Config struct {
	Provider    string  // "openai" or "anthropic"
	Endpoint    string  // Optional base URL override for compatible endpoints
	Model       string  // Model name, e.g. "gpt-4o-mini"
	APIKey      string  // Optional for local OpenAI-compatible endpoints
	Temperature float32 // Sampling temperature
	MaxTokens   int     // Response token cap
}

// NewClient creates a completion client for the configured provider.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		return newAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
