// Package utils provides token counting and identifier helpers.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for context-budget decisions.
// All supported vendors are approximated with the GPT-4 encoding; the
// compressor only needs a stable estimate, not vendor-exact counts.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter using the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return estimateTokens(text)
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return estimateTokens(text)
	}
	return count
}

// estimateTokens falls back to the usual 4-chars-per-token heuristic.
func estimateTokens(text string) int {
	return len(text) / 4
}

// CountTokensSimple counts tokens without a TokenCounter instance.
func CountTokensSimple(text string) int {
	tc, err := NewTokenCounter()
	if err != nil {
		return estimateTokens(text)
	}
	return tc.CountTokens(text)
}
