// File: internal/infra/adapters/ai/openai_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/ports/adapter"
)

var _ adapter.LLMClient = (*OpenAIAdapter)(nil)

type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, baseURL, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...), model: model}, nil
}

func (a *OpenAIAdapter) Provider() string { return "openai" }

func (a *OpenAIAdapter) NewChat(_ context.Context, opts adapter.GenerateOptions) (adapter.Chat, error) {
	return &openAIChat{client: a.client, model: a.model, opts: opts}, nil
}

func (a *OpenAIAdapter) Stream(ctx context.Context, prompt string, opts adapter.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := a.params(opts, []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)})
		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", openAIError("stream", err))
		}
	}
}

func (a *OpenAIAdapter) params(opts adapter.GenerateOptions, msgs []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: msgs,
	}
	if opts.Temperature > 0 {
		p.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.TopP > 0 {
		p.TopP = openai.Float(float64(opts.TopP))
	}
	if opts.MaxOutputTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(opts.MaxOutputTokens))
	}
	if opts.JSON {
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return p
}

// openAIChat keeps the running message list; the API itself is stateless.
type openAIChat struct {
	client  openai.Client
	model   string
	opts    adapter.GenerateOptions
	history []openai.ChatCompletionMessageParamUnion
}

func (c *openAIChat) Send(ctx context.Context, msg string) (string, error) {
	a := &OpenAIAdapter{client: c.client, model: c.model}
	msgs := append(c.history, openai.UserMessage(msg))

	resp, err := c.client.Chat.Completions.New(ctx, a.params(c.opts, msgs))
	if err != nil {
		return "", openAIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	reply := resp.Choices[0].Message.Content
	c.history = append(msgs, openai.AssistantMessage(reply))
	return reply, nil
}

// openAIError tags provider throttling so callers can tell it apart.
func openAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai: %s: %w: %w", op, domain.ErrRateLimited, err)
	}
	return fmt.Errorf("openai: %s: %w", op, err)
}
