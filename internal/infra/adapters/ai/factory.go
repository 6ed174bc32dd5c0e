package ai

import (
	"context"
	"fmt"
	"strings"

	"interview-copilot/internal/config"
	"interview-copilot/internal/domain/ports/adapter"
)

// NewFromConfig builds the configured provider and wraps it with the
// concurrency and timeout guard.
func NewFromConfig(ctx context.Context, cfg config.AIConfig) (adapter.LLMClient, error) {
	var (
		inner adapter.LLMClient
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		inner, err = NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "openai":
		inner, err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewLimitedLLM(inner, cfg.ConcurrentLimit, cfg.Timeout), nil
}
