// Package lm evaluates language models through a local inference
// server: corpus perplexity and prompted generation samples.
package lm

import (
	"context"
)

// Score is one scored text: negative log likelihood summed over
// TokenCount tokens.
type Score struct {
	NLLSum     float64 `json:"nll_sum"`
	TokenCount int64   `json:"token_count"`
}

// GenOpts control sampling.
type GenOpts struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

func DefaultGenOpts() GenOpts {
	return GenOpts{MaxNewTokens: 100, Temperature: 0.7, TopP: 0.9}
}

// Model scores and continues text.
type Model interface {
	Score(ctx context.Context, text string, maxTokens int) (Score, error)
	Generate(ctx context.Context, prompt string, opts GenOpts) (string, error)
}
