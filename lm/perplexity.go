package lm

import (
	"context"
	"io"
	"log"
	"math"

	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/corpus"
)

const (
	DefaultNumSamples = 100
	DefaultMaxLength  = 512
)

// Perplexity scores up to numSamples documents and reports
// exp(total nll / total tokens). The server truncates each document to
// maxLength tokens. Documents the model fails on are skipped with a
// warning; scoring nothing at all is an error.
func Perplexity(ctx context.Context, m Model, docs corpus.DocumentIterator,
	numSamples int, maxLength int) (float64, error) {
	if numSamples <= 0 {
		numSamples = DefaultNumSamples
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	var nllSum float64
	var tokenSum int64
	for sampled := 0; sampled < numSamples; {
		text, err := docs()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		sampled++
		score, err := m.Score(ctx, text, maxLength)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Printf("Skipping unscoreable document: %v", err)
			continue
		}
		if score.TokenCount == 0 {
			continue
		}
		nllSum += score.NLLSum
		tokenSum += score.TokenCount
	}
	if tokenSum == 0 {
		return 0, errors.New("no documents could be scored")
	}
	return math.Exp(nllSum / float64(tokenSum)), nil
}
