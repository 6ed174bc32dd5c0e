// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"google.golang.org/genai"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/ports/adapter"
)

var _ adapter.LLMClient = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiAdapter{client: c, model: model}, nil
}

func (g *GeminiAdapter) Provider() string { return "gemini" }

func (g *GeminiAdapter) NewChat(ctx context.Context, opts adapter.GenerateOptions) (adapter.Chat, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, toGenAIConfig(opts), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: create chat: %w", err)
	}
	return &geminiChat{chat: chat}, nil
}

func (g *GeminiAdapter) Stream(ctx context.Context, prompt string, opts adapter.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), toGenAIConfig(opts)) {
			if err != nil {
				yield("", geminiError("stream", err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, msg string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: msg})
	if err != nil {
		return "", geminiError("send", err)
	}
	return responseText(resp), nil
}

// --- internal ---

func geminiError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini: %s: %w: %w", op, domain.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini: %s: %w", op, err)
}

func toGenAIConfig(opts adapter.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.TopP > 0 {
		cfg.TopP = genai.Ptr(opts.TopP)
	}
	if opts.TopK > 0 {
		cfg.TopK = genai.Ptr(opts.TopK)
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if opts.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			out += p.Text
		}
	}
	return out
}
