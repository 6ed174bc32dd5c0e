package adapter

import (
	"context"
	"iter"
)

// GenerateOptions tunes a single model call.
type GenerateOptions struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	// JSON asks the provider for an application/json response.
	JSON bool
}

// Chat is a multi-turn conversation. Each Send sees the previous turns,
// which is what the structured-output repair loop relies on.
type Chat interface {
	Send(ctx context.Context, msg string) (string, error)
}

// LLMClient is the port for text generation.
type LLMClient interface {
	Provider() string
	NewChat(ctx context.Context, opts GenerateOptions) (Chat, error)
	// Stream yields text fragments in arrival order. A non-nil error ends
	// the sequence.
	Stream(ctx context.Context, prompt string, opts GenerateOptions) iter.Seq2[string, error]
}

// TokenCounter sizes prompt material before it is sent.
type TokenCounter interface {
	Count(text string) int
}
