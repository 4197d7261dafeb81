package lm

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
)

// DefaultPrompts exercise medical-domain completions.
var DefaultPrompts = []string{
	"The patient presented with chest pain and",
	"Diabetes mellitus is characterized by",
	"The most common adverse effects of statin therapy include",
	"Magnetic resonance imaging of the brain revealed",
}

// LoadPrompts reads a JSON array of prompt strings.
func LoadPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read prompts %s", path)
	}
	var prompts []string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, errors.Wrapf(err, "cannot parse prompts %s", path)
	}
	if len(prompts) == 0 {
		return nil, errors.Errorf("no prompts in %s", path)
	}
	return prompts, nil
}

// Sample is one prompt and its cleaned continuation.
type Sample struct {
	Prompt string
	Text   string
}

// GenerateSamples runs one generation per prompt. Completions that echo
// the prompt have the prefix stripped, and trailing incomplete
// sentences are trimmed.
func GenerateSamples(ctx context.Context, m Model, prompts []string,
	opts GenOpts) ([]Sample, error) {
	samples := make([]Sample, 0, len(prompts))
	for _, prompt := range prompts {
		text, err := m.Generate(ctx, prompt, opts)
		if err != nil {
			return samples, errors.Wrapf(err, "generating for %q", prompt)
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, prompt))
		samples = append(samples, Sample{
			Prompt: prompt,
			Text:   TrimIncomplete(text),
		})
	}
	return samples, nil
}

// TrimIncomplete drops an unterminated trailing sentence. Trims that
// would cost more than a fifth of the text leave it whole.
func TrimIncomplete(text string) string {
	if text == "" {
		return text
	}
	doc, err := prose.NewDocument(
		text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return text
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return text
	}
	last := sentences[len(sentences)-1].Text
	var final rune
	for _, r := range last {
		if unicode.IsSpace(r) {
			continue
		}
		final = r
	}
	if unicode.IsPunct(final) {
		return text
	}
	cut := strings.LastIndex(text, last)
	if cut < 1 {
		return text
	}
	trimmed := strings.TrimSpace(text[:cut])
	if float64(len(trimmed)) < float64(len(text))*0.8 {
		return text
	}
	return trimmed
}
