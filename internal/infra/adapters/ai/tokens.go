package ai

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"interview-copilot/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts with a BPE encoding, or estimates 4 runes per token
// when the encoding could not be loaded.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
